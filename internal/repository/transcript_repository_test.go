package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"figmant-go/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTranscriptFixture(t *testing.T) TranscriptRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTranscriptRepository(client)
}

func TestAppendMessagesPreservesOrder(t *testing.T) {
	repo := newTranscriptFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := model.ChatMessage{
			ID:        fmt.Sprintf("msg-%d", i),
			Role:      "user",
			Content:   fmt.Sprintf("第 %d 条", i),
			Timestamp: time.Now(),
		}
		if err := repo.AppendMessages(ctx, 1, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	messages, err := repo.GetTranscript(ctx, 1)
	if err != nil {
		t.Fatalf("get transcript: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, msg := range messages {
		if msg.ID != fmt.Sprintf("msg-%d", i) {
			t.Fatalf("message %d out of order: %q", i, msg.ID)
		}
	}
}

func TestAppendMessagesConcurrentWritersLoseNothing(t *testing.T) {
	repo := newTranscriptFixture(t)
	ctx := context.Background()

	// 两个写入方同时追加，读改写的实现会互相覆盖丢消息
	const writers = 2
	const perWriter = 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				msg := model.ChatMessage{
					ID:      fmt.Sprintf("w%d-%d", w, i),
					Role:    "user",
					Content: "并发消息",
				}
				if err := repo.AppendMessages(ctx, 1, msg); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	messages, err := repo.GetTranscript(ctx, 1)
	if err != nil {
		t.Fatalf("get transcript: %v", err)
	}
	if len(messages) != writers*perWriter {
		t.Fatalf("expected %d messages, got %d", writers*perWriter, len(messages))
	}
}

func TestAppendMessagesTruncatesOldest(t *testing.T) {
	repo := newTranscriptFixture(t)
	ctx := context.Background()

	for i := 0; i < transcriptMaxMessages+5; i++ {
		msg := model.ChatMessage{ID: fmt.Sprintf("msg-%d", i), Role: "user", Content: "x"}
		if err := repo.AppendMessages(ctx, 1, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	messages, err := repo.GetTranscript(ctx, 1)
	if err != nil {
		t.Fatalf("get transcript: %v", err)
	}
	if len(messages) != transcriptMaxMessages {
		t.Fatalf("expected %d messages after truncation, got %d", transcriptMaxMessages, len(messages))
	}
	// 截断的是最旧的消息
	if messages[0].ID != "msg-5" {
		t.Fatalf("expected oldest surviving message msg-5, got %q", messages[0].ID)
	}
}

func TestGetTranscriptEmptyUser(t *testing.T) {
	repo := newTranscriptFixture(t)

	messages, err := repo.GetTranscript(context.Background(), 42)
	if err != nil {
		t.Fatalf("get transcript: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty transcript, got %d messages", len(messages))
	}
}
