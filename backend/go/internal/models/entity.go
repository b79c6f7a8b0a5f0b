package models

import (
	"fmt"
	"strings"
	"time"
)

// EntityKind 标识实体的类别（全局趋势实体或单个用户实体）。
type EntityKind string

const (
	KindGlobal EntityKind = "global" // 全局时尚趋势摘要
	KindUser   EntityKind = "user"   // 单个用户的偏好摘要
)

// EntityRef 唯一定位一个实体。
type EntityRef struct {
	Kind EntityKind `json:"kind" bson:"kind"`
	ID   string     `json:"id" bson:"id"`
}

// Key 返回 "kind/id" 形式的键，用作存储键和追踪器的表键。
func (r EntityRef) Key() string {
	return string(r.Kind) + "/" + r.ID
}

func (r EntityRef) String() string { return r.Key() }

// ParseEntityKey 是 Key 的逆操作。
func ParseEntityKey(key string) (EntityRef, error) {
	kind, id, ok := strings.Cut(key, "/")
	if !ok || kind == "" || id == "" {
		return EntityRef{}, fmt.Errorf("invalid entity key %q", key)
	}
	return EntityRef{Kind: EntityKind(kind), ID: id}, nil
}

// EntityState 是某个实体的完整持久化状态。
// 只能通过 state.Store 的串行化 Update 修改，读者拿到的永远是副本。
type EntityState struct {
	Ref      EntityRef         `json:"ref" bson:"ref"`
	Summary  Summary           `json:"summary" bson:"summary"`
	Activity []ActivityEvent   `json:"activity,omitempty" bson:"activity,omitempty"` // 仅追加的事件日志，按插入顺序
	Profile  map[string]string `json:"profile,omitempty" bson:"profile,omitempty"`   // 初始化参数，例如 gender/occupation/age
	Version  int64             `json:"version" bson:"version"`                       // 每次提交递增

	// ActivitySummary 是活动日志的独立汇总，只有把活动汇总到这里的实体类型（全局实体）才会使用。
	ActivitySummary *Summary `json:"activity_summary,omitempty" bson:"activity_summary,omitempty"`
	// Recommendations 记录每个查询（小写）已经推荐过的单品，下次推荐时避免重复。
	Recommendations map[string][]string `json:"recommendations,omitempty" bson:"recommendations,omitempty"`
}

// Clone 返回深拷贝。
func (s *EntityState) Clone() *EntityState {
	if s == nil {
		return nil
	}
	out := &EntityState{
		Ref:     s.Ref,
		Summary: s.Summary.Clone(),
		Version: s.Version,
	}
	if s.Activity != nil {
		out.Activity = make([]ActivityEvent, len(s.Activity))
		copy(out.Activity, s.Activity)
	}
	if s.Profile != nil {
		out.Profile = make(map[string]string, len(s.Profile))
		for k, v := range s.Profile {
			out.Profile[k] = v
		}
	}
	if s.ActivitySummary != nil {
		sum := s.ActivitySummary.Clone()
		out.ActivitySummary = &sum
	}
	if s.Recommendations != nil {
		out.Recommendations = make(map[string][]string, len(s.Recommendations))
		for q, items := range s.Recommendations {
			out.Recommendations[q] = append([]string(nil), items...)
		}
	}
	return out
}

// PendingActivity 返回尚未汇总进 into 的活动事件（其 ID 不在 into 的 contributing_ids 中）。
func (s *EntityState) PendingActivity(into Summary) []ActivityEvent {
	var pending []ActivityEvent
	for _, ev := range s.Activity {
		if !into.Contains(ev.ID) {
			pending = append(pending, ev)
		}
	}
	return pending
}

// NewEntityState 创建一个空状态。
func NewEntityState(ref EntityRef) *EntityState {
	return &EntityState{
		Ref:     ref,
		Summary: Summary{ContributingIDs: []string{}},
	}
}

// Snapshot 是追踪器在某一时刻拍下的只读副本，只用于比较和计算差异，永远不会被写回。
type Snapshot struct {
	State   *EntityState `json:"state"`
	TakenAt time.Time    `json:"taken_at"`
}

// NewSnapshot 深拷贝 state。
func NewSnapshot(state *EntityState, at time.Time) Snapshot {
	return Snapshot{State: state.Clone(), TakenAt: at}
}
