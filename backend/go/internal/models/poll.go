package models

import (
	"strings"
	"time"
)

// DiffOp 标注差异行的类型。
type DiffOp int

const (
	DiffEqual DiffOp = iota
	DiffDelete
	DiffInsert
)

// Prefix 返回 ndiff 风格的行前缀。
func (op DiffOp) Prefix() string {
	switch op {
	case DiffDelete:
		return "- "
	case DiffInsert:
		return "+ "
	default:
		return "  "
	}
}

func (op DiffOp) String() string {
	switch op {
	case DiffDelete:
		return "delete"
	case DiffInsert:
		return "insert"
	default:
		return "equal"
	}
}

// MarshalText 让 JSON 输出 "equal"/"delete"/"insert"。
func (op DiffOp) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// DiffLine 是一行差异。
type DiffLine struct {
	Op   DiffOp `json:"op"`
	Text string `json:"text"`
}

// Diff 是两次摘要文本之间的行级差异。
type Diff struct {
	Lines      []DiffLine `json:"lines"`
	NoBaseline bool       `json:"no_baseline"` // 首次观测，没有可比较的旧值
}

const noBaselineText = "No previous summary stored."

// Changed 报告差异中是否存在插入或删除。
func (d Diff) Changed() bool {
	for _, l := range d.Lines {
		if l.Op != DiffEqual {
			return true
		}
	}
	return false
}

// String 以 ndiff 格式渲染差异。
func (d Diff) String() string {
	if d.NoBaseline {
		return noBaselineText
	}
	var sb strings.Builder
	for i, l := range d.Lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l.Op.Prefix())
		sb.WriteString(l.Text)
	}
	return sb.String()
}

// PollRecord 是追踪器为每个实体维护的一条记录，只存在于进程内存中。
type PollRecord struct {
	EntityKey     string    `json:"entity_key"`
	LastPollAt    time.Time `json:"last_poll_at"`
	LastChangedAt time.Time `json:"last_changed_at"`
	LastSnapshot  Snapshot  `json:"last_snapshot"`
	Diff          Diff      `json:"diff"`
}
