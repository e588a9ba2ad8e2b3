package models

import "time"

// KeyBlob is a named byte blob persisted by a key store. PEM encoded key
// halves are stored one per blob, keyed by their configured path.
// KeyBlob 是由密钥存储持久化的命名字节块。PEM 编码的密钥的每一半
// 按其配置路径作为一个独立的字节块存储。
type KeyBlob struct {
	// Name is the configured key path, e.g. "keys/private.pem".
	// Name 是配置的密钥路径，例如 "keys/private.pem"。
	Name string `gorm:"primaryKey;size:255"`

	// Data is the raw blob content.
	// Data 是原始字节块内容。
	Data []byte `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table used by the SQL key store.
func (KeyBlob) TableName() string {
	return "signing_key_blobs"
}
