package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// chunkDB persists chunk payloads. It is the metadata half of the
// vectorstore artifact; vector order and payload order are aligned through
// the position column.
type chunkDB struct {
	db *sql.DB
}

func openChunkDB(dataSourceName string) (*chunkDB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping chunk database: %w", err)
	}

	s := &chunkDB{db: db}
	if err = s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize chunk schema: %w", err)
	}
	return s, nil
}

func (s *chunkDB) Close() error {
	return s.db.Close()
}

func (s *chunkDB) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS chunks (
        id TEXT PRIMARY KEY, -- UUID
        position INTEGER UNIQUE NOT NULL,
        sermon_id TEXT NOT NULL,
        title TEXT NOT NULL,
        author TEXT NOT NULL,
        video_id TEXT,
        content TEXT NOT NULL,
        chunk_index INTEGER NOT NULL,
        start_offset INTEGER NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *chunkDB) insertChunks(chunks []SermonChunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin chunk insert: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO chunks (id, position, sermon_id, title, author, video_id, content, chunk_index, start_offset) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for pos, chunk := range chunks {
		if _, err := stmt.Exec(chunk.ID, pos, chunk.SermonID, chunk.Title, chunk.Author, chunk.VideoID, chunk.Content, chunk.Index, chunk.StartOffset); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert chunk %d: %w", pos, err)
		}
	}
	return tx.Commit()
}

func (s *chunkDB) readChunks() ([]SermonChunk, error) {
	rows, err := s.db.Query("SELECT id, sermon_id, title, author, video_id, content, chunk_index, start_offset FROM chunks ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []SermonChunk
	for rows.Next() {
		var chunk SermonChunk
		var videoID sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.SermonID, &chunk.Title, &chunk.Author, &videoID, &chunk.Content, &chunk.Index, &chunk.StartOffset); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if videoID.Valid {
			chunk.VideoID = videoID.String
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
