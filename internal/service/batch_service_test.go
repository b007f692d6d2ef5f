package service

import (
	"context"
	"errors"
	"figmant-go/internal/config"
	"figmant-go/internal/model"
	"figmant-go/internal/repository"
	"figmant-go/pkg/analysis"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.UploadRecord{}, &model.BatchAnalysis{}, &model.BatchAnalysisVersion{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newBatchFixture(t *testing.T, client *fakeAnalysisClient) (BatchService, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	batchRepo := repository.NewBatchRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	svc := NewBatchService(batchRepo, uploadRepo, client, config.ElasticsearchConfig{}, config.AnalysisConfig{Model: "test-model"})
	return svc, db
}

func seedCompletedUpload(t *testing.T, db *gorm.DB, attachmentID string, userID uint) {
	t.Helper()
	record := &model.UploadRecord{
		AttachmentID: attachmentID,
		UserID:       userID,
		FileName:     attachmentID + ".png",
		ContentType:  "image/png",
		SizeBytes:    1024,
		UploadKind:   "chat",
		StoragePath:  "uploads/1/" + attachmentID + ".png",
		Status:       model.UploadStatusCompleted,
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("seed upload record: %v", err)
	}
}

func TestCreateBatchAssignsCompletedUploads(t *testing.T) {
	client := &fakeAnalysisClient{result: &analysis.Result{Analysis: "ok"}}
	svc, db := newBatchFixture(t, client)
	seedCompletedUpload(t, db, "att-1", 1)
	seedCompletedUpload(t, db, "att-2", 1)

	batch, err := svc.CreateBatch(context.Background(), 1, "首页改版", []string{"att-1", "att-2"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if batch.State != model.BatchStateCreated {
		t.Fatalf("expected created state, got %q", batch.State)
	}

	var count int64
	if err := db.Model(&model.UploadRecord{}).Where("batch_id = ?", batch.BatchID).Count(&count).Error; err != nil {
		t.Fatalf("count assigned: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 records assigned, got %d", count)
	}
}

func TestCreateBatchRejectsEmptySelection(t *testing.T) {
	svc, _ := newBatchFixture(t, &fakeAnalysisClient{})

	_, err := svc.CreateBatch(context.Background(), 1, "空批次", []string{"no-such"})
	if !errors.Is(err, ErrNoAttachmentsInBatch) {
		t.Fatalf("expected ErrNoAttachmentsInBatch, got %v", err)
	}
}

func TestVersionNumbersAreMonotonic(t *testing.T) {
	client := &fakeAnalysisClient{result: &analysis.Result{Analysis: "初版分析", Confidence: 0.8}}
	svc, db := newBatchFixture(t, client)
	seedCompletedUpload(t, db, "att-1", 1)

	batch, err := svc.CreateBatch(context.Background(), 1, "首页改版", []string{"att-1"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	v1, err := svc.RunAnalysis(context.Background(), 1, batch.BatchID)
	if err != nil {
		t.Fatalf("run analysis: %v", err)
	}
	if v1.VersionNumber != 1 {
		t.Fatalf("expected version 1, got %d", v1.VersionNumber)
	}

	client.result = &analysis.Result{Analysis: "迭代后分析", Confidence: 0.85}
	v2, err := svc.RunModification(context.Background(), 1, batch.BatchID, "调大了 CTA 按钮")
	if err != nil {
		t.Fatalf("run modification: %v", err)
	}
	if v2.VersionNumber != 2 {
		t.Fatalf("expected version 2, got %d", v2.VersionNumber)
	}

	client.result = &analysis.Result{Analysis: "再次迭代", Confidence: 0.9}
	v3, err := svc.RunModification(context.Background(), 1, batch.BatchID, "更换了配色")
	if err != nil {
		t.Fatalf("run modification: %v", err)
	}
	if v3.VersionNumber != 3 {
		t.Fatalf("expected version 3, got %d", v3.VersionNumber)
	}

	// 历史版本保持不变
	versions, err := svc.ListVersions(context.Background(), 1, batch.BatchID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	if versions[0].AnalysisResults != "初版分析" || versions[0].ModificationSummary != "" {
		t.Fatalf("version 1 mutated: %+v", versions[0])
	}
	if versions[1].ModificationSummary != "调大了 CTA 按钮" {
		t.Fatalf("version 2 summary wrong: %q", versions[1].ModificationSummary)
	}

	updated, err := svc.GetBatch(context.Background(), 1, batch.BatchID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if updated.State != model.BatchStateModified {
		t.Fatalf("expected modified state, got %q", updated.State)
	}
}

func TestRunAnalysisRejectedOnceAnalyzed(t *testing.T) {
	client := &fakeAnalysisClient{result: &analysis.Result{Analysis: "初版分析"}}
	svc, db := newBatchFixture(t, client)
	seedCompletedUpload(t, db, "att-1", 1)

	batch, err := svc.CreateBatch(context.Background(), 1, "首页改版", []string{"att-1"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if _, err := svc.RunAnalysis(context.Background(), 1, batch.BatchID); err != nil {
		t.Fatalf("run analysis: %v", err)
	}

	// 初次分析只能执行一次，重复调用不得产生无修改说明的新版本
	_, err = svc.RunAnalysis(context.Background(), 1, batch.BatchID)
	if !errors.Is(err, ErrBatchAlreadyAnalyzed) {
		t.Fatalf("expected ErrBatchAlreadyAnalyzed, got %v", err)
	}

	versions, err := svc.ListVersions(context.Background(), 1, batch.BatchID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected 1 version, got %d", len(versions))
	}

	// 迭代分析之后同样不允许再跑初次分析
	client.result = &analysis.Result{Analysis: "迭代后分析"}
	if _, err := svc.RunModification(context.Background(), 1, batch.BatchID, "调整了导航"); err != nil {
		t.Fatalf("run modification: %v", err)
	}
	if _, err := svc.RunAnalysis(context.Background(), 1, batch.BatchID); !errors.Is(err, ErrBatchAlreadyAnalyzed) {
		t.Fatalf("expected ErrBatchAlreadyAnalyzed after modification, got %v", err)
	}
}

func TestRunModificationRequiresSummary(t *testing.T) {
	client := &fakeAnalysisClient{result: &analysis.Result{Analysis: "ok"}}
	svc, db := newBatchFixture(t, client)
	seedCompletedUpload(t, db, "att-1", 1)

	batch, err := svc.CreateBatch(context.Background(), 1, "首页改版", []string{"att-1"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if _, err := svc.RunAnalysis(context.Background(), 1, batch.BatchID); err != nil {
		t.Fatalf("run analysis: %v", err)
	}

	_, err = svc.RunModification(context.Background(), 1, batch.BatchID, "")
	if !errors.Is(err, ErrEmptyModificationSummary) {
		t.Fatalf("expected ErrEmptyModificationSummary, got %v", err)
	}
}

func TestRunModificationRequiresPriorAnalysis(t *testing.T) {
	client := &fakeAnalysisClient{result: &analysis.Result{Analysis: "ok"}}
	svc, db := newBatchFixture(t, client)
	seedCompletedUpload(t, db, "att-1", 1)

	batch, err := svc.CreateBatch(context.Background(), 1, "首页改版", []string{"att-1"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	_, err = svc.RunModification(context.Background(), 1, batch.BatchID, "改了点东西")
	if !errors.Is(err, ErrBatchNotAnalyzed) {
		t.Fatalf("expected ErrBatchNotAnalyzed, got %v", err)
	}
}

func TestBatchOwnershipIsEnforced(t *testing.T) {
	client := &fakeAnalysisClient{result: &analysis.Result{Analysis: "ok"}}
	svc, db := newBatchFixture(t, client)
	seedCompletedUpload(t, db, "att-1", 1)

	batch, err := svc.CreateBatch(context.Background(), 1, "首页改版", []string{"att-1"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	// 其他用户不可见
	if _, err := svc.GetBatch(context.Background(), 2, batch.BatchID); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound for foreign user, got %v", err)
	}
}
