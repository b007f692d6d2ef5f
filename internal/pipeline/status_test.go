package pipeline

import (
	"figmant-go/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusStoreRemoveIsIdempotent(t *testing.T) {
	store := NewStatusStore()
	store.Put(model.Attachment{ID: "a", UserID: 1, CreatedAt: time.Now()})

	store.Remove("a")
	store.Remove("a") // 重复移除无副作用
	store.Remove("never-existed")

	_, ok := store.Get("a")
	require.False(t, ok)
	require.Empty(t, store.List(1))
}

func TestStatusStoreApplyAfterRemoveIsDropped(t *testing.T) {
	store := NewStatusStore()
	store.Put(model.Attachment{ID: "a", UserID: 1, Status: model.AttachmentStatusProcessing, CreatedAt: time.Now()})
	store.Remove("a")

	// 移除后仍在途的处理链写入状态：落空，不复活条目
	applied := store.Apply("a", func(att model.Attachment) model.Attachment {
		att.Status = model.AttachmentStatusUploaded
		return att
	})
	require.False(t, applied)
	_, ok := store.Get("a")
	require.False(t, ok)
}

func TestStatusStoreApplyCannotChangeID(t *testing.T) {
	store := NewStatusStore()
	store.Put(model.Attachment{ID: "a", UserID: 1, CreatedAt: time.Now()})

	store.Apply("a", func(att model.Attachment) model.Attachment {
		att.ID = "b"
		att.Status = model.AttachmentStatusUploading
		return att
	})

	att, ok := store.Get("a")
	require.True(t, ok)
	require.Equal(t, "a", att.ID)
	require.Equal(t, model.AttachmentStatusUploading, att.Status)
	_, ok = store.Get("b")
	require.False(t, ok)
}

func TestStatusStoreListIsStableByCreationOrder(t *testing.T) {
	store := NewStatusStore()
	base := time.Now()
	store.Put(model.Attachment{ID: "c", UserID: 1, CreatedAt: base.Add(2 * time.Second)})
	store.Put(model.Attachment{ID: "a", UserID: 1, CreatedAt: base})
	store.Put(model.Attachment{ID: "b", UserID: 1, CreatedAt: base.Add(time.Second)})
	store.Put(model.Attachment{ID: "x", UserID: 2, CreatedAt: base})

	list := store.List(1)
	require.Len(t, list, 3)
	require.Equal(t, "a", list[0].ID)
	require.Equal(t, "b", list[1].ID)
	require.Equal(t, "c", list[2].ID)
}

func TestStatusStoreSubscribeReceivesUpdates(t *testing.T) {
	store := NewStatusStore()
	updates, cancel := store.Subscribe()
	defer cancel()

	store.Put(model.Attachment{ID: "a", UserID: 1, Status: model.AttachmentStatusPending, CreatedAt: time.Now()})
	store.Apply("a", func(att model.Attachment) model.Attachment {
		att.Status = model.AttachmentStatusUploading
		return att
	})

	first := <-updates
	require.Equal(t, model.AttachmentStatusPending, first.Status)
	second := <-updates
	require.Equal(t, model.AttachmentStatusUploading, second.Status)
}
