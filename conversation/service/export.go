package service

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"research-chat/backend/conversation/models"
	"research-chat/backend/conversation/sink"
)

var csvHeader = []string{"session_id", "conversation_id", "message", "role", "created_at"}

// writeCSV streams the rows of src that match filter into w
func writeCSV(ctx context.Context, w io.Writer, src sink.RowIterator, filter *Filter) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}

	rows := 0
	err := src.Each(ctx, func(m models.ChatMessage) error {
		ok, err := filter.Match(m)
		if err != nil || !ok {
			return err
		}
		rows++
		return cw.Write([]string{
			m.SessionID,
			m.ConversationID,
			m.Content,
			string(m.Role),
			m.CreatedAt.UTC().Format(models.TimestampLayout),
		})
	})
	if err != nil {
		return rows, err
	}

	cw.Flush()
	return rows, cw.Error()
}

// writeFileAtomic writes through a temp file in the target directory and renames it into place
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	buf := bufio.NewWriter(tmp)
	if err := write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("move export into place: %w", err)
	}
	return nil
}
