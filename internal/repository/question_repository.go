package repository

import (
	"context"
	"edu_practice_backend/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 单次抽题最多加载的候选题数量
const maxQuestionCandidates = 2000

type QuestionRepository struct {
	DB             *gorm.DB
	CandidateLimit int
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db, CandidateLimit: maxQuestionCandidates}
}

// randomOrder 各方言的随机排序函数
func randomOrder(db *gorm.DB) string {
	if db.Dialector.Name() == "mysql" {
		return "RAND()"
	}
	return "RANDOM()"
}

func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Create(q).Error
}

func (r *QuestionRepository) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).First(&q, id).Error
	return &q, err
}

type questionCandidate struct {
	ID   uint
	Tags datatypes.JSONSlice[string]
}

// ResolveIDs 按模式与过滤条件抽取题目，结果随机排列，最多 count 道。
// 候选题在数据库中随机抽样，题库超过候选上限时也覆盖全部题目。
func (r *QuestionRepository) ResolveIDs(ctx context.Context, mode model.PracticeMode, f model.PracticeFilter, count int) ([]uint, error) {
	query := r.DB.WithContext(ctx).Model(&model.Question{}).Where("status = ?", model.QuestionStatusActive)

	switch mode {
	case model.PracticeModeCategory:
		query = query.Where("category_id IN ?", f.CategoryIDs)
	case model.PracticeModeKnowledge:
		query = query.Where("knowledge_point_id IN ?", f.KnowledgePointIDs)
	}
	if len(f.Types) > 0 {
		query = query.Where("type IN ?", f.Types)
	}
	if len(f.Difficulties) > 0 {
		query = query.Where("difficulty IN ?", f.Difficulties)
	}

	limit := r.CandidateLimit
	if limit <= 0 {
		limit = maxQuestionCandidates
	}

	var rows []questionCandidate
	if err := query.Select("id", "tags").Order(randomOrder(r.DB)).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		if len(f.Tags) > 0 && !hasAnyTag(row.Tags, f.Tags) {
			continue
		}
		ids = append(ids, row.ID)
	}

	if count > 0 && len(ids) > count {
		ids = ids[:count]
	}
	return ids, nil
}

func hasAnyTag(tags []string, wanted []string) bool {
	for _, t := range tags {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}
