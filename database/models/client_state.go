package models

import "time"

// ClientState 客户端持久化的键值状态，目前只保存会话
type ClientState struct {
	Key       string `gorm:"column:state_key;primaryKey;size:64"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}
