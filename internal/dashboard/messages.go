package dashboard

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Status message keys. Each key is also the English text.
const (
	msgNotInitialized = "Earth Engine is not initialized"
	msgInitializing   = "Initializing Earth Engine..."
	msgRetrying       = "Initialization failed, retrying (%d left)"
	msgReady          = "Earth Engine ready"
	msgAuthRequired   = "Please complete Earth Engine authentication"
	msgInitFailed     = "Initialization failed: %s"
	msgAnalyzing      = "Analyzing %s for %s..."
	msgComplete       = "Analysis complete: %d months, %d without imagery"
	msgFailed         = "Analysis failed: %s"
	msgCanceled       = "Analysis canceled"
	msgBusy           = "An analysis is already running"
)

var supportedLanguages = []language.Tag{language.English, language.Chinese}

var languageMatcher = language.NewMatcher(supportedLanguages)

var chinese = map[string]string{
	msgNotInitialized: "Earth Engine 尚未初始化",
	msgInitializing:   "正在初始化 Earth Engine...",
	msgRetrying:       "初始化失败，正在重试（剩余 %d 次）",
	msgReady:          "Earth Engine 已就绪",
	msgAuthRequired:   "请完成 Earth Engine 身份验证",
	msgInitFailed:     "初始化失败：%s",
	msgAnalyzing:      "正在分析 %s（%s）...",
	msgComplete:       "分析完成：%d 个月，其中 %d 个月无影像",
	msgFailed:         "分析失败：%s",
	msgCanceled:       "分析已取消",
	msgBusy:           "已有分析正在运行",
}

var messages = newCatalog()

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, zh := range chinese {
		// Registration only fails on malformed messages.
		_ = b.SetString(language.English, key, key)
		_ = b.SetString(language.Chinese, key, zh)
	}
	return b
}

// matchLanguage picks a supported language for the given preferences,
// falling back to English.
func matchLanguage(prefs ...string) language.Tag {
	var tags []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	_, idx, _ := languageMatcher.Match(tags...)
	return supportedLanguages[idx]
}

func newPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(messages))
}
