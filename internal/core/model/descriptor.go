package model

// ActionDescriptor 动作描述 (来自 actions.json)
// Port 为 0 表示独立动作，Parent 为空表示根动作
type ActionDescriptor struct {
	Module string `json:"b_module"`
	Class  string `json:"b_class"`
	Port   int    `json:"b_port"`
	Status string `json:"b_status"`
	Parent string `json:"b_parent,omitempty"`
}

// Key 知识库中的列名，b_parent 同样引用类名
// b_status 仅用于展示
func (d ActionDescriptor) Key() string {
	return d.Class
}

// IsStandalone 是否独立动作
func (d ActionDescriptor) IsStandalone() bool {
	return d.Port == 0
}

// IsChild 是否依赖父动作
func (d ActionDescriptor) IsChild() bool {
	return d.Parent != ""
}
