// Package filters 实现候选过滤流水线。
// 候选必须通过所有阶段才被接受; 阶段顺序只影响日志,不影响结果。
package filters

import (
	"github.com/RecoveryAshes/AutoFollow/internal/metrics"
	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/rs/zerolog/log"
)

// Decision 过滤结果
type Decision struct {
	Accepted bool
	Stage    string // 拒绝的阶段
	Reason   string
}

// Pipeline 有序的过滤阶段组合
type Pipeline struct {
	stages []Stage
}

// NewPipeline 按运行配置构建八个阶段
func NewPipeline(cfg models.RunConfig, ignore IgnoreSet) *Pipeline {
	return &Pipeline{stages: []Stage{
		RelationshipStage{Ignore: ignore},
		IgnoreStage{Ignore: ignore},
		AvatarStage{Mode: cfg.AvatarFilter},
		NameStage{Mode: cfg.NameFilter},
		LanguageStage{Script: cfg.NameLanguage},
		NewKeywordStage(cfg.Whitelist, false),
		NewKeywordStage(cfg.Blacklist, true),
		OnlineStage{Mode: cfg.OnlineFilter},
	}}
}

// Stages 返回阶段列表 (只读)
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Evaluate 依次评估,第一个拒绝的阶段决定结果
func (p *Pipeline) Evaluate(c *models.Candidate) Decision {
	for _, s := range p.stages {
		ok, reason := s.Accept(c)
		if ok {
			continue
		}
		metrics.RejectionsTotal.WithLabelValues(s.Name()).Inc()
		log.Debug().
			Str("handle", c.Handle).
			Str("stage", s.Name()).
			Str("reason", reason).
			Msg("候选被过滤")
		return Decision{Stage: s.Name(), Reason: reason}
	}
	return Decision{Accepted: true}
}

// Filter 返回通过流水线的候选,保持原顺序
func (p *Pipeline) Filter(cands []models.Candidate) []models.Candidate {
	accepted := make([]models.Candidate, 0, len(cands))
	for i := range cands {
		if p.Evaluate(&cands[i]).Accepted {
			accepted = append(accepted, cands[i])
		}
	}
	return accepted
}
