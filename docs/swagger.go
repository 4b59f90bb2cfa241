package docs

import "github.com/swaggo/swag"

// @title Tracking API
// @version 1.0
// @description Live location tracking and geofence evaluation for couriers and recipients
// @host localhost:9000
// @BasePath /

// @securityDefinitions.apikey ApiKeyAuth
// @in query
// @name token
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:9000",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Tracking API",
	Description:      "Live location tracking and geofence evaluation for couriers and recipients",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {"get": {"tags": ["health"], "summary": "Liveness check", "responses": {"200": {"description": "OK"}}}},
        "/geofences": {
            "get": {"tags": ["geofences"], "summary": "List registered zones", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["geofences"], "summary": "Register a zone", "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}}
        },
        "/orders/{orderId}/location/{role}": {
            "parameters": [
                {"name": "orderId", "in": "path", "required": true, "type": "string"},
                {"name": "role", "in": "path", "required": true, "type": "string", "enum": ["user", "dasher"]}
            ],
            "put": {"tags": ["orders"], "summary": "Report a location over REST", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}},
            "get": {"tags": ["orders"], "summary": "Last known location for an order role", "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        }
    }
}`

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
