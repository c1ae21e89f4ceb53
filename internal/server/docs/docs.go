// Package docs holds the OpenAPI document served under /swagger.
// Regenerate with swag init after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Thumbscan Maintainers",
            "url": "https://github.com/raysh454/thumbscan"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/scans": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Start a scan job",
                "parameters": [
                    {
                        "description": "listing filter override",
                        "name": "request",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/server.StartScanRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/app.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "summary": "List jobs, newest first",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/app.Job"}}}
                }
            }
        },
        "/jobs/{jobID}": {
            "get": {
                "produces": ["application/json"],
                "summary": "Get a job snapshot",
                "parameters": [
                    {"type": "string", "description": "job id", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.Job"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            },
            "delete": {
                "summary": "Cancel a job",
                "parameters": [
                    {"type": "string", "description": "job id", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/reports": {
            "get": {
                "produces": ["application/json"],
                "summary": "List stored scan reports, newest first",
                "parameters": [
                    {"type": "integer", "description": "maximum number of reports", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.ReportSummary"}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/reports/latest": {
            "get": {
                "produces": ["application/json"],
                "summary": "Get the most recent report",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Report"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/reports/{reportID}": {
            "get": {
                "produces": ["application/json"],
                "summary": "Get a report",
                "parameters": [
                    {"type": "string", "description": "report id", "name": "reportID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Report"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/reports/{baseID}/diff/{headID}": {
            "get": {
                "produces": ["application/json"],
                "summary": "Compare the defect lists of two reports",
                "parameters": [
                    {"type": "string", "description": "older report", "name": "baseID", "in": "path", "required": true},
                    {"type": "string", "description": "newer report", "name": "headID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.ReportDiff"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/deadletters": {
            "get": {
                "produces": ["application/json"],
                "summary": "Count queued failed checks",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.DeadLetterCountResponse"}}
                }
            }
        },
        "/deadletters/redrive": {
            "post": {
                "produces": ["application/json"],
                "summary": "Re-check queued failures once",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.RedriveResult"}}
                }
            }
        }
    },
    "definitions": {
        "catalog.Filter": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "61"},
                "categoryId": {"type": "string"},
                "containSubCate": {"type": "boolean"},
                "filters": {"type": "string"}
            }
        },
        "server.StartScanRequest": {
            "type": "object",
            "properties": {
                "filter": {"$ref": "#/definitions/catalog.Filter"}
            }
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "not found"}
            }
        },
        "server.DeadLetterCountResponse": {
            "type": "object",
            "properties": {
                "queued": {"type": "integer", "example": 3}
            }
        },
        "app.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string", "example": "scan"},
                "filter": {"$ref": "#/definitions/catalog.Filter"},
                "status": {"type": "string", "enum": ["pending", "running", "done", "failed", "canceled"]},
                "error": {"type": "string"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"},
                "processed": {"type": "integer"},
                "total": {"type": "integer"},
                "report": {"$ref": "#/definitions/model.Report"}
            }
        },
        "app.RedriveResult": {
            "type": "object",
            "properties": {
                "stats": {
                    "type": "object",
                    "properties": {
                        "processed": {"type": "integer"},
                        "recovered": {"type": "integer"},
                        "requeued": {"type": "integer"},
                        "dropped": {"type": "integer"}
                    }
                },
                "defects": {"type": "array", "items": {"type": "string"}}
            }
        },
        "model.Report": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "elapsed_ms": {"type": "integer"},
                "filter": {"type": "string", "description": "JSON encoded listing filter"},
                "total": {"type": "integer"},
                "deleted": {"type": "integer"},
                "defects": {"type": "array", "items": {"type": "string"}},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/model.CheckError"}}
            }
        },
        "model.CheckError": {
            "type": "object",
            "properties": {
                "video_id": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "model.ReportSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "elapsed_ms": {"type": "integer"},
                "total": {"type": "integer"},
                "deleted": {"type": "integer"},
                "defect_count": {"type": "integer"},
                "error_count": {"type": "integer"}
            }
        },
        "model.ReportDiff": {
            "type": "object",
            "properties": {
                "base_id": {"type": "string"},
                "head_id": {"type": "string"},
                "added": {"type": "array", "items": {"type": "string"}},
                "removed": {"type": "array", "items": {"type": "string"}},
                "unified": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Thumbscan API",
	Description:      "Start thumbnail scans, follow their progress and browse scan history.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
