// Package workflow はリソース種別ごとの状態遷移（ワークフロー）を定義する。
// 遷移の可否はバックエンドが最終判断するため、ここでの定義は
// コンソールが操作候補を提示するためだけに使用する。
// 承認待ち（pending）への移行はバックエンドが著者の権限に応じて決めるため、
// 遷移表には含めない。表の操作はすべて /api/{kind}/{id}/{action} に対応する。
package workflow

import "github.com/hitoshi/pressdesk/internal/model"

// Action は状態遷移を引き起こす操作を表す。
type Action string

const (
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
	ActionReject    Action = "reject"
	ActionClose     Action = "close"
)

// Transition は1つの遷移を表す。
type Transition struct {
	From   model.Status `json:"from"`
	Action Action       `json:"action"`
	To     model.Status `json:"to"`
}

// Workflow はリソース種別の状態遷移表。
type Workflow struct {
	Name        string
	States      []model.Status
	Transitions []Transition
}

// Editorial はブログ・コンテンツ・ホームコンテンツのワークフロー。
// 管理者以外の著者は承認待ち（pending）を経由し、差し戻し（rejected）がありうる。
var Editorial = Workflow{
	Name: "editorial",
	States: []model.Status{
		model.StatusDraft,
		model.StatusPending,
		model.StatusPublished,
		model.StatusRejected,
		model.StatusClosed,
	},
	Transitions: []Transition{
		{From: model.StatusDraft, Action: ActionPublish, To: model.StatusPublished},
		{From: model.StatusPending, Action: ActionPublish, To: model.StatusPublished},
		{From: model.StatusPending, Action: ActionReject, To: model.StatusRejected},
		{From: model.StatusPublished, Action: ActionUnpublish, To: model.StatusDraft},
		{From: model.StatusPublished, Action: ActionClose, To: model.StatusClosed},
	},
}

// Job は求人情報のワークフロー。承認待ちと差し戻しは存在しない。
var Job = Workflow{
	Name: "job",
	States: []model.Status{
		model.StatusDraft,
		model.StatusPublished,
		model.StatusClosed,
	},
	Transitions: []Transition{
		{From: model.StatusDraft, Action: ActionPublish, To: model.StatusPublished},
		{From: model.StatusPublished, Action: ActionUnpublish, To: model.StatusDraft},
		{From: model.StatusPublished, Action: ActionClose, To: model.StatusClosed},
	},
}

// AllowedActions は指定状態から実行可能な操作を遷移表の順で返す。
// 状態が空の場合は下書きとして扱う。
func (w Workflow) AllowedActions(status model.Status) []Action {
	if status == "" {
		status = model.StatusDraft
	}
	var actions []Action
	for _, t := range w.Transitions {
		if t.From == status {
			actions = append(actions, t.Action)
		}
	}
	return actions
}
