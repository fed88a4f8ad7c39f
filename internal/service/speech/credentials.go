package speech

import (
	"fmt"
	"strings"

	speechmodel "github.com/mharburg8/talk-to-your-inner-child/internal/model/speech"
)

// resolveCredentials 返回规范化后的 AppID 与 AccessToken，缺失时给出明确错误。
func resolveCredentials(cfg speechmodel.VolcengineConfig) (string, string, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if appID == "" || token == "" {
		return "", "", fmt.Errorf("volcengine: VOLC_APP_ID or VOLC_ACCESS_TOKEN missing")
	}
	return appID, token, nil
}
