package i18n

import (
	"sort"
	"strings"
)

var languageNames = map[string]string{
	"bn": "Bengali",
	"en": "English",
	"hi": "Hindi",
	"ru": "Russian",
}

func IsSupported(code string) bool {
	_, ok := languageNames[strings.ToLower(code)]
	return ok
}

func GetLanguageName(code string) string {
	normalized := strings.ToLower(code)
	if name, ok := languageNames[normalized]; ok {
		return name
	}
	return code
}

func GetLanguagesList() []string {
	codes := make([]string, 0, len(languageNames))
	for code := range languageNames {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
