package resources

import "embed"

//go:embed i18n/*.yml migrations/*.sql wordlists/*.yml
var FS embed.FS
