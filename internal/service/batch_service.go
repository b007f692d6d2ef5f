package service

import (
	"context"
	"errors"
	"figmant-go/internal/config"
	"figmant-go/internal/model"
	"figmant-go/internal/repository"
	"figmant-go/pkg/analysis"
	"figmant-go/pkg/es"
	"figmant-go/pkg/log"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrBatchNotFound 表示批次不存在。
	ErrBatchNotFound = errors.New("批次不存在")
	// ErrEmptyModificationSummary 表示迭代分析必须附带修改说明。
	ErrEmptyModificationSummary = errors.New("修改说明不能为空")
	// ErrBatchNotAnalyzed 表示迭代分析前必须先完成初次分析。
	ErrBatchNotAnalyzed = errors.New("批次尚未完成初次分析")
	// ErrBatchAlreadyAnalyzed 表示初次分析只能执行一次，后续版本必须走迭代分析。
	ErrBatchAlreadyAnalyzed = errors.New("批次已完成初次分析，请通过修改说明发起迭代分析")
	// ErrNoAttachmentsInBatch 表示批次内没有可分析的上传记录。
	ErrNoAttachmentsInBatch = errors.New("批次内没有可分析的附件")
)

// BatchService 定义了批次分析与版本历史的业务操作接口。
type BatchService interface {
	CreateBatch(ctx context.Context, userID uint, name string, attachmentIDs []string) (*model.BatchAnalysis, error)
	// RunAnalysis 对批次执行初次分析，产生版本 1。
	RunAnalysis(ctx context.Context, userID uint, batchID string) (*model.BatchAnalysisVersion, error)
	// RunModification 基于修改说明执行迭代分析，产生下一个版本。
	RunModification(ctx context.Context, userID uint, batchID, modificationSummary string) (*model.BatchAnalysisVersion, error)
	GetBatch(ctx context.Context, userID uint, batchID string) (*model.BatchAnalysis, error)
	ListBatches(ctx context.Context, userID uint) ([]*model.BatchAnalysis, error)
	ListVersions(ctx context.Context, userID uint, batchID string) ([]*model.BatchAnalysisVersion, error)
}

type batchService struct {
	batchRepo      repository.BatchRepository
	uploadRepo     repository.UploadRepository
	analysisClient analysis.Client
	esCfg          config.ElasticsearchConfig
	analysisCfg    config.AnalysisConfig
}

// NewBatchService 创建一个新的 BatchService 实例。
func NewBatchService(batchRepo repository.BatchRepository, uploadRepo repository.UploadRepository, analysisClient analysis.Client, esCfg config.ElasticsearchConfig, analysisCfg config.AnalysisConfig) BatchService {
	return &batchService{
		batchRepo:      batchRepo,
		uploadRepo:     uploadRepo,
		analysisClient: analysisClient,
		esCfg:          esCfg,
		analysisCfg:    analysisCfg,
	}
}

// CreateBatch 创建一个分析批次，并把已完成上传的记录归入该批次。
func (s *batchService) CreateBatch(ctx context.Context, userID uint, name string, attachmentIDs []string) (*model.BatchAnalysis, error) {
	records, err := s.uploadRepo.FindByAttachmentIDs(attachmentIDs)
	if err != nil {
		return nil, fmt.Errorf("查询上传记录失败: %w", err)
	}
	valid := make([]string, 0, len(records))
	for _, r := range records {
		if r.UserID == userID && r.Status == model.UploadStatusCompleted {
			valid = append(valid, r.AttachmentID)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoAttachmentsInBatch
	}

	batch := &model.BatchAnalysis{
		BatchID: uuid.New().String(),
		UserID:  userID,
		Name:    name,
		State:   model.BatchStateCreated,
	}
	if err := s.batchRepo.CreateBatch(batch); err != nil {
		return nil, fmt.Errorf("创建批次失败: %w", err)
	}
	if err := s.uploadRepo.AssignBatch(valid, batch.BatchID); err != nil {
		return nil, fmt.Errorf("归入批次失败: %w", err)
	}

	log.Infof("[BatchService] 批次已创建: %s, attachments: %d", batch.BatchID, len(valid))
	return batch, nil
}

// RunAnalysis 对批次执行初次分析。分析结果作为版本 1 写入版本历史，
// 批次状态推进到 analyzed。
func (s *batchService) RunAnalysis(ctx context.Context, userID uint, batchID string) (*model.BatchAnalysisVersion, error) {
	batch, err := s.getOwnedBatch(userID, batchID)
	if err != nil {
		return nil, err
	}
	// 版本 1 之后的结果只能携带修改说明写入，初次分析不允许重复执行
	if batch.State != model.BatchStateCreated {
		return nil, ErrBatchAlreadyAnalyzed
	}

	result, err := s.analyze(ctx, batch, "")
	if err != nil {
		return nil, err
	}

	version := &model.BatchAnalysisVersion{
		BatchID:         batchID,
		AnalysisResults: result.Analysis,
		ConfidenceScore: result.Confidence,
		CreatedAt:       time.Now(),
	}
	versionNumber, err := s.batchRepo.CreateVersion(version)
	if err != nil {
		return nil, fmt.Errorf("写入版本记录失败: %w", err)
	}
	if err := s.batchRepo.UpdateState(batchID, model.BatchStateAnalyzed); err != nil {
		log.Warnf("[BatchService] 更新批次状态失败: %s, error: %v", batchID, err)
	}

	s.indexVersion(ctx, userID, version)
	log.Infof("[BatchService] 批次分析完成: %s, version: %d", batchID, versionNumber)
	return version, nil
}

// RunModification 基于修改说明执行迭代分析。历史版本保持不变，新结果追加为
// 下一个版本，批次状态推进到 modified。
func (s *batchService) RunModification(ctx context.Context, userID uint, batchID, modificationSummary string) (*model.BatchAnalysisVersion, error) {
	if modificationSummary == "" {
		return nil, ErrEmptyModificationSummary
	}
	batch, err := s.getOwnedBatch(userID, batchID)
	if err != nil {
		return nil, err
	}
	if batch.State == model.BatchStateCreated {
		return nil, ErrBatchNotAnalyzed
	}

	result, err := s.analyze(ctx, batch, modificationSummary)
	if err != nil {
		return nil, err
	}

	version := &model.BatchAnalysisVersion{
		BatchID:             batchID,
		ModificationSummary: modificationSummary,
		AnalysisResults:     result.Analysis,
		ConfidenceScore:     result.Confidence,
		CreatedAt:           time.Now(),
	}
	versionNumber, err := s.batchRepo.CreateVersion(version)
	if err != nil {
		return nil, fmt.Errorf("写入版本记录失败: %w", err)
	}
	if err := s.batchRepo.UpdateState(batchID, model.BatchStateModified); err != nil {
		log.Warnf("[BatchService] 更新批次状态失败: %s, error: %v", batchID, err)
	}

	s.indexVersion(ctx, userID, version)
	log.Infof("[BatchService] 批次迭代分析完成: %s, version: %d", batchID, versionNumber)
	return version, nil
}

// GetBatch 返回用户的指定批次。
func (s *batchService) GetBatch(ctx context.Context, userID uint, batchID string) (*model.BatchAnalysis, error) {
	return s.getOwnedBatch(userID, batchID)
}

// ListBatches 返回用户的全部批次。
func (s *batchService) ListBatches(ctx context.Context, userID uint) ([]*model.BatchAnalysis, error) {
	return s.batchRepo.ListByUser(userID)
}

// ListVersions 返回批次的版本历史，按版本号升序。
func (s *batchService) ListVersions(ctx context.Context, userID uint, batchID string) ([]*model.BatchAnalysisVersion, error) {
	if _, err := s.getOwnedBatch(userID, batchID); err != nil {
		return nil, err
	}
	return s.batchRepo.ListVersions(batchID)
}

func (s *batchService) getOwnedBatch(userID uint, batchID string) (*model.BatchAnalysis, error) {
	batch, err := s.batchRepo.GetByBatchID(batchID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询批次失败: %w", err)
	}
	if batch.UserID != userID {
		return nil, ErrBatchNotFound
	}
	return batch, nil
}

func (s *batchService) analyze(ctx context.Context, batch *model.BatchAnalysis, modificationSummary string) (*analysis.Result, error) {
	records, err := s.uploadRepo.FindByUserID(batch.UserID)
	if err != nil {
		return nil, fmt.Errorf("查询上传记录失败: %w", err)
	}
	refs := make([]analysis.AttachmentRef, 0)
	for _, r := range records {
		if r.BatchID == batch.BatchID && r.Status == model.UploadStatusCompleted {
			refs = append(refs, analysis.AttachmentRef{
				Type:       "file",
				Name:       r.FileName,
				UploadPath: r.StoragePath,
			})
		}
	}
	if len(refs) == 0 {
		return nil, ErrNoAttachmentsInBatch
	}

	message := fmt.Sprintf("对批次「%s」执行 UX 分析", batch.Name)
	if modificationSummary != "" {
		message = fmt.Sprintf("基于修改说明重新分析批次「%s」：%s", batch.Name, modificationSummary)
	}
	result, err := s.analysisClient.Analyze(ctx, analysis.Request{
		Message:     message,
		Attachments: refs,
		Model:       s.analysisCfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("分析调用失败: %w", err)
	}
	return result, nil
}

func (s *batchService) indexVersion(ctx context.Context, userID uint, version *model.BatchAnalysisVersion) {
	doc := model.InsightDocument{
		InsightID:       fmt.Sprintf("%s-v%d", version.BatchID, version.VersionNumber),
		UserID:          userID,
		Source:          "batch",
		BatchID:         version.BatchID,
		VersionNumber:   version.VersionNumber,
		AnalysisText:    version.AnalysisResults,
		ConfidenceScore: version.ConfidenceScore,
		CreatedAt:       version.CreatedAt,
	}
	if err := es.IndexInsight(ctx, s.esCfg.IndexName, doc); err != nil {
		log.Warnf("[BatchService] 索引批次洞察失败: %v", err)
	}
}
