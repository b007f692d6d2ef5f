package service

import (
	"context"
	"errors"
	"figmant-go/internal/config"
	"figmant-go/internal/model"
	"figmant-go/internal/pipeline"
	"figmant-go/internal/repository"
	"testing"
	"time"

	"gorm.io/gorm"
)

func newAttachmentFixture(t *testing.T) (AttachmentService, *pipeline.StatusStore, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	store := pipeline.NewStatusStore()
	svc := NewAttachmentService(store, repository.NewUploadRepository(db), config.MinIOConfig{BucketName: "test-bucket"})
	return svc, store, db
}

func TestRemoveRejectsForeignAttachmentInStore(t *testing.T) {
	svc, store, _ := newAttachmentFixture(t)
	store.Put(model.Attachment{
		ID:        "att-1",
		UserID:    1,
		Type:      model.AttachmentTypeImage,
		Name:      "home.png",
		Status:    model.AttachmentStatusUploaded,
		CreatedAt: time.Now(),
	})

	err := svc.Remove(context.Background(), 2, "att-1")
	if !errors.Is(err, ErrAttachmentNotFound) {
		t.Fatalf("expected ErrAttachmentNotFound, got %v", err)
	}
	if _, ok := store.Get("att-1"); !ok {
		t.Fatalf("attachment should still exist after foreign remove")
	}
}

func TestRemoveRejectsForeignUploadRecord(t *testing.T) {
	svc, _, db := newAttachmentFixture(t)
	// 附件已发送并离开状态存储，但上传记录仍在数据库
	seedCompletedUpload(t, db, "att-1", 1)

	err := svc.Remove(context.Background(), 2, "att-1")
	if !errors.Is(err, ErrAttachmentNotFound) {
		t.Fatalf("expected ErrAttachmentNotFound, got %v", err)
	}

	var count int64
	if err := db.Model(&model.UploadRecord{}).Where("attachment_id = ?", "att-1").Count(&count).Error; err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 1 {
		t.Fatalf("foreign remove must not delete the upload record, got %d rows", count)
	}
}
