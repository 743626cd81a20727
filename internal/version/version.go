// 包 version：构建期注入的版本信息，供接口与日志输出
package version

// Commit：构建时通过 -ldflags "-X kingdom-api/internal/version.Commit=..." 注入
var Commit = "dev"
