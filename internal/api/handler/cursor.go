package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/hoangnt/dialout/internal/api/storage"
)

func DecodeCallCursor(cursorStr string) (*storage.CallCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &storage.CallCursor{
		CreatedAt: time.Unix(0, createdAt),
		CallID:    parts[1],
	}, nil
}

func EncodeCallCursor(cursor *storage.CallCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.CallID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
