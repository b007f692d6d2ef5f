package service

import (
	"context"
	"errors"
	"figmant-go/internal/config"
	"figmant-go/internal/model"
	"figmant-go/internal/pipeline"
	"figmant-go/pkg/analysis"
	"testing"
	"time"
)

// fakeTranscriptRepo 用内存切片代替 Redis。
type fakeTranscriptRepo struct {
	messages  map[uint][]model.ChatMessage
	debugInfo map[uint]map[string]interface{}
}

func newFakeTranscriptRepo() *fakeTranscriptRepo {
	return &fakeTranscriptRepo{
		messages:  make(map[uint][]model.ChatMessage),
		debugInfo: make(map[uint]map[string]interface{}),
	}
}

func (f *fakeTranscriptRepo) GetTranscript(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	return f.messages[userID], nil
}

func (f *fakeTranscriptRepo) AppendMessages(ctx context.Context, userID uint, msgs ...model.ChatMessage) error {
	f.messages[userID] = append(f.messages[userID], msgs...)
	return nil
}

func (f *fakeTranscriptRepo) SetLastAnalysisDebug(ctx context.Context, userID uint, debugInfo map[string]interface{}) error {
	f.debugInfo[userID] = debugInfo
	return nil
}

func (f *fakeTranscriptRepo) GetLastAnalysisDebug(ctx context.Context, userID uint) (map[string]interface{}, error) {
	return f.debugInfo[userID], nil
}

// fakeAnalysisClient 记录请求并返回固定结果。
type fakeAnalysisClient struct {
	lastReq analysis.Request
	result  *analysis.Result
	err     error
}

func (f *fakeAnalysisClient) Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newChatFixture(client *fakeAnalysisClient) (ChatService, *pipeline.StatusStore, *fakeTranscriptRepo) {
	store := pipeline.NewStatusStore()
	repo := newFakeTranscriptRepo()
	svc := NewChatService(store, repo, client, config.ElasticsearchConfig{IndexName: "insights"}, config.AnalysisConfig{Model: "test-model"})
	return svc, store, repo
}

func putAttachment(store *pipeline.StatusStore, id string, status model.AttachmentStatus) {
	store.Put(model.Attachment{
		ID:        id,
		UserID:    1,
		Type:      model.AttachmentTypeImage,
		Name:      "design.png",
		Status:    status,
		CreatedAt: time.Now(),
	})
}

func TestCanSendRequiresTextOrAttachment(t *testing.T) {
	svc, _, _ := newChatFixture(&fakeAnalysisClient{})

	ok, reason := svc.CanSend(1, "")
	if ok {
		t.Fatal("expected empty submission to be rejected")
	}
	if reason == "" {
		t.Fatal("expected a reason for rejection")
	}

	ok, _ = svc.CanSend(1, "分析这个页面")
	if !ok {
		t.Fatal("expected text-only submission to be allowed")
	}
}

func TestCanSendBlocksWhileAttachmentInFlight(t *testing.T) {
	svc, store, _ := newChatFixture(&fakeAnalysisClient{})
	putAttachment(store, "a", model.AttachmentStatusUploading)

	ok, reason := svc.CanSend(1, "有文字也不行")
	if ok {
		t.Fatal("expected in-flight attachment to block submission")
	}
	if reason == "" {
		t.Fatal("expected a reason for rejection")
	}
}

func TestCanSendBlocksOnFailedAttachment(t *testing.T) {
	svc, store, _ := newChatFixture(&fakeAnalysisClient{})
	putAttachment(store, "a", model.AttachmentStatusError)
	putAttachment(store, "b", model.AttachmentStatusUploaded)

	ok, _ := svc.CanSend(1, "text")
	if ok {
		t.Fatal("expected failed attachment to block submission")
	}
}

func TestCanSendAllowsUploadedAttachmentWithoutText(t *testing.T) {
	svc, store, _ := newChatFixture(&fakeAnalysisClient{})
	putAttachment(store, "a", model.AttachmentStatusUploaded)

	ok, _ := svc.CanSend(1, "")
	if !ok {
		t.Fatal("expected uploaded attachment alone to allow submission")
	}
}

func TestSendMessageAppendsBothRolesAndClearsAttachments(t *testing.T) {
	client := &fakeAnalysisClient{result: &analysis.Result{
		Analysis:   "整体布局清晰，但 CTA 按钮对比度不足。",
		UploadIDs:  []string{"u1"},
		BatchID:    "batch-1",
		Confidence: 0.9,
	}}
	svc, store, repo := newChatFixture(client)
	putAttachment(store, "a", model.AttachmentStatusUploaded)

	reply, err := svc.SendMessage(context.Background(), 1, "评审一下", "ux-review")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if reply.Role != "assistant" || reply.Content != client.result.Analysis {
		t.Fatalf("unexpected reply: role=%q content=%q", reply.Role, reply.Content)
	}
	if reply.BatchID != "batch-1" {
		t.Fatalf("expected batch id on reply, got %q", reply.BatchID)
	}

	msgs := repo.messages[1]
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "评审一下" {
		t.Fatalf("unexpected user msg: %+v", msgs[0])
	}
	if len(msgs[0].Attachments) != 1 || msgs[0].Attachments[0].ID != "a" {
		t.Fatalf("expected attachment snapshot on user msg, got %+v", msgs[0].Attachments)
	}
	if len(store.List(1)) != 0 {
		t.Fatal("expected attachments to be cleared after submission")
	}
	if client.lastReq.Template != "ux-review" || client.lastReq.Model != "test-model" {
		t.Fatalf("unexpected analysis request: %+v", client.lastReq)
	}
}

func TestSendMessageAnalysisFailureYieldsApology(t *testing.T) {
	client := &fakeAnalysisClient{err: errors.New("upstream 502")}
	svc, store, repo := newChatFixture(client)
	putAttachment(store, "a", model.AttachmentStatusUploaded)

	reply, err := svc.SendMessage(context.Background(), 1, "评审一下", "")
	if err != nil {
		t.Fatalf("expected no error surfaced to caller, got %v", err)
	}
	if reply.Role != "assistant" {
		t.Fatalf("expected assistant apology, got role %q", reply.Role)
	}
	if reply.Content != analysisUnavailableMessage {
		t.Fatalf("unexpected apology content: %q", reply.Content)
	}

	// 用户消息保留（乐观追加不回滚），原始错误进调试侧信道
	msgs := repo.messages[1]
	if len(msgs) != 2 || msgs[0].Role != "user" {
		t.Fatalf("expected user message retained, got %+v", msgs)
	}
	debug := repo.debugInfo[1]
	if debug == nil || debug["error"] != "upstream 502" {
		t.Fatalf("expected raw error in debug info, got %+v", debug)
	}
}

func TestSendMessageRejectsWhenPreconditionsFail(t *testing.T) {
	svc, store, _ := newChatFixture(&fakeAnalysisClient{})
	putAttachment(store, "a", model.AttachmentStatusPending)

	_, err := svc.SendMessage(context.Background(), 1, "text", "")
	var serr *SubmissionError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
}
