package model

// Operator はコンソールを操作するログインユーザーのプロフィール。
type Operator struct {
	ID          ID       `json:"id,omitempty"`
	LegacyID    ID       `json:"_id,omitempty"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Normalize は正規の識別子を決定する（id ?? _id）。
func (o *Operator) Normalize() {
	if o.ID.IsZero() {
		o.ID = o.LegacyID
	}
	o.LegacyID = ""
}
