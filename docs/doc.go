// Package docs holds the general API info for generated OpenAPI documentation.
//
// Sysrev API
//
//	@title			Sysrev API
//	@version		1.0
//	@description	Structured data extraction from clinical research articles for systematic reviews.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/sysrev
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g doc.go -d ./,../internal/server/endpoints -o ./swagger --parseDependency --parseInternal
