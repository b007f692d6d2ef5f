package repository

import (
	"context"
	"encoding/json"
	"figmant-go/internal/model"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// transcriptMaxMessages 限制每个用户保留的消息条数，超出后截断最旧的。
	transcriptMaxMessages = 50
	transcriptTTL         = 7 * 24 * time.Hour
	debugInfoTTL          = 24 * time.Hour
)

// TranscriptRepository 定义了聊天记录与分析调试信息的操作接口。
type TranscriptRepository interface {
	GetTranscript(ctx context.Context, userID uint) ([]model.ChatMessage, error)
	AppendMessages(ctx context.Context, userID uint, messages ...model.ChatMessage) error
	SetLastAnalysisDebug(ctx context.Context, userID uint, debugInfo map[string]interface{}) error
	GetLastAnalysisDebug(ctx context.Context, userID uint) (map[string]interface{}, error)
}

type redisTranscriptRepository struct {
	redisClient *redis.Client
}

// NewTranscriptRepository 创建一个新的 TranscriptRepository 实例。
func NewTranscriptRepository(redisClient *redis.Client) TranscriptRepository {
	return &redisTranscriptRepository{redisClient: redisClient}
}

func transcriptKey(userID uint) string {
	return fmt.Sprintf("transcript:%d", userID)
}

func debugKey(userID uint) string {
	return fmt.Sprintf("transcript:%d:last_debug", userID)
}

// GetTranscript 从 Redis 获取用户的聊天记录，没有记录时返回空切片。
// 记录以 list 存储，每个元素是一条消息的 JSON。
func (r *redisTranscriptRepository) GetTranscript(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	items, err := r.redisClient.LRange(ctx, transcriptKey(userID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(items))
	for _, item := range items {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transcript message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// AppendMessages 把消息追加到聊天记录末尾，超过上限时截断最旧的消息。
// RPUSH/LTRIM 在一个事务 pipeline 内执行，并发追加不会相互覆盖。
func (r *redisTranscriptRepository) AppendMessages(ctx context.Context, userID uint, messages ...model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript message: %w", err)
		}
		values = append(values, data)
	}
	key := transcriptKey(userID)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -transcriptMaxMessages, -1)
		pipe.Expire(ctx, key, transcriptTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	return nil
}

// SetLastAnalysisDebug 保存最近一次分析的调试信息，供排障面板读取。
func (r *redisTranscriptRepository) SetLastAnalysisDebug(ctx context.Context, userID uint, debugInfo map[string]interface{}) error {
	jsonData, err := json.Marshal(debugInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal debug info: %w", err)
	}
	if err := r.redisClient.Set(ctx, debugKey(userID), jsonData, debugInfoTTL).Err(); err != nil {
		return fmt.Errorf("failed to save debug info: %w", err)
	}
	return nil
}

// GetLastAnalysisDebug 获取最近一次分析的调试信息，没有时返回 nil。
func (r *redisTranscriptRepository) GetLastAnalysisDebug(ctx context.Context, userID uint) (map[string]interface{}, error) {
	jsonData, err := r.redisClient.Get(ctx, debugKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get debug info: %w", err)
	}
	var debugInfo map[string]interface{}
	if err := json.Unmarshal([]byte(jsonData), &debugInfo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal debug info: %w", err)
	}
	return debugInfo, nil
}
