package repository

import (
	"figmant-go/internal/model"

	"gorm.io/gorm"
)

// BatchRepository 定义了批次分析及其版本历史的数据操作接口。
type BatchRepository interface {
	CreateBatch(batch *model.BatchAnalysis) error
	GetByBatchID(batchID string) (*model.BatchAnalysis, error)
	ListByUser(userID uint) ([]*model.BatchAnalysis, error)
	UpdateState(batchID string, state string) error
	// CreateVersion 在事务内分配下一个版本号并插入版本记录，返回分配的版本号。
	CreateVersion(version *model.BatchAnalysisVersion) (int, error)
	ListVersions(batchID string) ([]*model.BatchAnalysisVersion, error)
	LatestVersion(batchID string) (*model.BatchAnalysisVersion, error)
}

type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository 创建一个新的 BatchRepository 实例。
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

// CreateBatch 创建一条批次分析记录。
func (r *batchRepository) CreateBatch(batch *model.BatchAnalysis) error {
	return r.db.Create(batch).Error
}

// GetByBatchID 根据批次ID查找批次。
func (r *batchRepository) GetByBatchID(batchID string) (*model.BatchAnalysis, error) {
	var batch model.BatchAnalysis
	err := r.db.Where("batch_id = ?", batchID).First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListByUser 查找用户的全部批次，按创建时间倒序。
func (r *batchRepository) ListByUser(userID uint) ([]*model.BatchAnalysis, error) {
	var batches []*model.BatchAnalysis
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&batches).Error
	return batches, err
}

// UpdateState 更新批次的生命周期状态。
func (r *batchRepository) UpdateState(batchID string, state string) error {
	return r.db.Model(&model.BatchAnalysis{}).
		Where("batch_id = ?", batchID).
		Update("state", state).Error
}

// CreateVersion 分配下一个版本号并插入版本记录。版本号在事务内基于当前最大值
// 递增，保证同一批次的版本号严格单调且不复用。
func (r *batchRepository) CreateVersion(version *model.BatchAnalysisVersion) (int, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		if err := tx.Model(&model.BatchAnalysisVersion{}).
			Where("batch_id = ?", version.BatchID).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&maxVersion).Error; err != nil {
			return err
		}
		version.VersionNumber = maxVersion + 1
		return tx.Create(version).Error
	})
	if err != nil {
		return 0, err
	}
	return version.VersionNumber, nil
}

// ListVersions 返回批次的全部版本，按版本号升序。
func (r *batchRepository) ListVersions(batchID string) ([]*model.BatchAnalysisVersion, error) {
	var versions []*model.BatchAnalysisVersion
	err := r.db.Where("batch_id = ?", batchID).Order("version_number ASC").Find(&versions).Error
	return versions, err
}

// LatestVersion 返回批次的最新版本，不存在时返回 gorm.ErrRecordNotFound。
func (r *batchRepository) LatestVersion(batchID string) (*model.BatchAnalysisVersion, error) {
	var version model.BatchAnalysisVersion
	err := r.db.Where("batch_id = ?", batchID).Order("version_number DESC").First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}
