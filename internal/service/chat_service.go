package service

import (
	"context"
	"figmant-go/internal/config"
	"figmant-go/internal/model"
	"figmant-go/internal/pipeline"
	"figmant-go/internal/repository"
	"figmant-go/pkg/analysis"
	"figmant-go/pkg/es"
	"figmant-go/pkg/log"
	"time"

	"github.com/google/uuid"
)

const analysisUnavailableMessage = "抱歉，AI 分析服务暂时不可用，请稍后重试。您的消息和附件都已保留。"

// ChatService 定义了聊天提交流程的业务操作接口。
type ChatService interface {
	// CanSend 判定当前输入能否提交，不能时返回原因。
	CanSend(userID uint, text string) (bool, string)
	// SendMessage 提交一条消息：乐观追加用户消息、调用分析、追加助手回复。
	// 分析失败不向调用方返回错误，而是追加一条致歉回复。
	SendMessage(ctx context.Context, userID uint, text, template string) (*model.ChatMessage, error)
	GetTranscript(ctx context.Context, userID uint) ([]model.ChatMessage, error)
	GetLastAnalysisDebug(ctx context.Context, userID uint) (map[string]interface{}, error)
}

type chatService struct {
	store          *pipeline.StatusStore
	transcriptRepo repository.TranscriptRepository
	analysisClient analysis.Client
	esCfg          config.ElasticsearchConfig
	analysisCfg    config.AnalysisConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(store *pipeline.StatusStore, transcriptRepo repository.TranscriptRepository, analysisClient analysis.Client, esCfg config.ElasticsearchConfig, analysisCfg config.AnalysisConfig) ChatService {
	return &chatService{
		store:          store,
		transcriptRepo: transcriptRepo,
		analysisClient: analysisClient,
		esCfg:          esCfg,
		analysisCfg:    analysisCfg,
	}
}

// CanSend 的三条规则：
//  1. 文本与就绪附件都为空时不能发送；
//  2. 有附件仍在处理中（pending/processing/uploading）时不能发送；
//  3. 有附件处于失败状态时不能发送，必须先重试或移除。
func (s *chatService) CanSend(userID uint, text string) (bool, string) {
	attachments := s.store.List(userID)

	hasUploaded := false
	for _, att := range attachments {
		switch att.Status {
		case model.AttachmentStatusError:
			return false, "存在上传失败的附件，请先重试或移除"
		case model.AttachmentStatusUploaded:
			hasUploaded = true
		default:
			return false, "附件仍在处理中，请稍候"
		}
	}

	if text == "" && !hasUploaded {
		return false, "请输入消息内容或添加附件"
	}
	return true, ""
}

// SendMessage 提交一条消息。附件快照在提交时固定：提交后新的附件变更不影响
// 已发出的消息。提交成功后当前附件列表被清空。
func (s *chatService) SendMessage(ctx context.Context, userID uint, text, template string) (*model.ChatMessage, error) {
	if ok, reason := s.CanSend(userID, text); !ok {
		return nil, &SubmissionError{Reason: reason}
	}

	attachments := s.store.List(userID)

	userMsg := model.ChatMessage{
		ID:          uuid.New().String(),
		Role:        "user",
		Content:     text,
		Attachments: attachments,
		Timestamp:   time.Now(),
	}
	// 乐观追加：用户消息先落到记录里，分析失败也不回滚
	if err := s.transcriptRepo.AppendMessages(ctx, userID, userMsg); err != nil {
		return nil, err
	}
	for _, att := range attachments {
		s.store.Remove(att.ID)
	}

	refs := make([]analysis.AttachmentRef, 0, len(attachments))
	for _, att := range attachments {
		refs = append(refs, analysis.AttachmentRef{
			Type:       string(att.Type),
			Name:       att.Name,
			URL:        att.URL,
			UploadPath: att.UploadPath,
		})
	}

	result, err := s.analysisClient.Analyze(ctx, analysis.Request{
		Message:     text,
		Attachments: refs,
		Template:    template,
		Model:       s.analysisCfg.Model,
	})
	if err != nil {
		log.Errorf("[ChatService] 分析调用失败: user: %d, error: %v", userID, err)
		// 原始错误进调试侧信道，用户侧只看到致歉回复
		if derr := s.transcriptRepo.SetLastAnalysisDebug(ctx, userID, map[string]interface{}{
			"error":     err.Error(),
			"timestamp": time.Now().Format(time.RFC3339),
		}); derr != nil {
			log.Warnf("[ChatService] 保存调试信息失败: %v", derr)
		}
		apology := model.ChatMessage{
			ID:        uuid.New().String(),
			Role:      "assistant",
			Content:   analysisUnavailableMessage,
			Timestamp: time.Now(),
		}
		if aerr := s.transcriptRepo.AppendMessages(ctx, userID, apology); aerr != nil {
			return nil, aerr
		}
		return &apology, nil
	}

	assistantMsg := model.ChatMessage{
		ID:        uuid.New().String(),
		Role:      "assistant",
		Content:   result.Analysis,
		Timestamp: time.Now(),
		UploadIDs: result.UploadIDs,
		BatchID:   result.BatchID,
	}
	if err := s.transcriptRepo.AppendMessages(ctx, userID, assistantMsg); err != nil {
		return nil, err
	}

	if result.DebugInfo != nil {
		if derr := s.transcriptRepo.SetLastAnalysisDebug(ctx, userID, result.DebugInfo); derr != nil {
			log.Warnf("[ChatService] 保存调试信息失败: %v", derr)
		}
	}

	// 分析结果写入 ES 供洞察检索，失败只记日志
	doc := model.InsightDocument{
		InsightID:       assistantMsg.ID,
		UserID:          userID,
		Source:          "chat",
		BatchID:         result.BatchID,
		AnalysisText:    result.Analysis,
		ConfidenceScore: result.Confidence,
		CreatedAt:       assistantMsg.Timestamp,
	}
	if err := es.IndexInsight(ctx, s.esCfg.IndexName, doc); err != nil {
		log.Warnf("[ChatService] 索引分析洞察失败: %v", err)
	}

	return &assistantMsg, nil
}

// GetTranscript 返回用户的聊天记录。
func (s *chatService) GetTranscript(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	return s.transcriptRepo.GetTranscript(ctx, userID)
}

// GetLastAnalysisDebug 返回最近一次分析的调试信息。
func (s *chatService) GetLastAnalysisDebug(ctx context.Context, userID uint) (map[string]interface{}, error) {
	return s.transcriptRepo.GetLastAnalysisDebug(ctx, userID)
}

// SubmissionError 表示消息不满足提交前置条件。
type SubmissionError struct {
	Reason string
}

func (e *SubmissionError) Error() string {
	return e.Reason
}
