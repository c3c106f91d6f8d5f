package config

// 构建时通过 -ldflags 注入
var (
	Version    string = "dev"
	CommitHash string = ""
)

// IsDevelopment 开发构建输出更详细的日志
func IsDevelopment() bool {
	return Version == "dev"
}
