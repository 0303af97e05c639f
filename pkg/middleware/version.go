package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/version"
)

// VersionInfo 版本接口返回体。
type VersionInfo struct {
	GitVersion string `json:"git_version"`
	GitCommit  string `json:"git_commit,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
	GoVersion  string `json:"go_version,omitempty"`
	Platform   string `json:"platform,omitempty"`
}

// Version 返回构建版本信息。hideDetails 为 true 时只暴露版本号。
func Version(hideDetails bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := version.Get()
		out := VersionInfo{GitVersion: info.GitVersion}
		if !hideDetails {
			out.GitCommit = info.GitCommit
			out.BuildDate = info.BuildDate
			out.GoVersion = info.GoVersion
			out.Platform = info.Platform
		}
		c.JSON(http.StatusOK, out)
	}
}
