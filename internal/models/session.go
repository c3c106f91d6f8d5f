package models

// Session 当前登录用户
type Session struct {
	ActorID     string `json:"userid" mapstructure:"userid"`
	DisplayName string `json:"name" mapstructure:"name"`
	Bio         string `json:"bio" mapstructure:"bio"`
}

// Valid 持久化的会话至少要有用户 ID
func (s Session) Valid() bool {
	return s.ActorID != ""
}

// Profile 用户公开资料
type Profile struct {
	UserID string `json:"userid" mapstructure:"userid"`
	Name   string `json:"name" mapstructure:"name"`
	Bio    string `json:"bio" mapstructure:"bio"`
}
