package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Institute API",
        "description": "Multi-tenant institute management backend",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and sessions"},
        {"name": "Businesses", "description": "Institute registration and management"},
        {"name": "Users", "description": "User accounts and roles"},
        {"name": "Teachers", "description": "Teacher profiles"},
        {"name": "Exams", "description": "Target exams offered by an institute"},
        {"name": "Courses", "description": "Courses under an exam"},
        {"name": "Subjects", "description": "Subject catalogue and course mappings"},
        {"name": "Batches", "description": "Batches, memberships and roster export"},
        {"name": "Contents", "description": "Batch study material and downloads"},
        {"name": "Audit", "description": "API activity trail"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/exams": {
            "get": {
                "tags": ["Exams"],
                "summary": "List exams",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Exams"],
                "summary": "Create exam",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/batches/{id}/roster/export": {
            "get": {
                "tags": ["Batches"],
                "summary": "Export batch roster as CSV or PDF",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "File stream"}
                }
            }
        },
        "/contents/download": {
            "get": {
                "tags": ["Contents"],
                "summary": "Download a file via signed token",
                "responses": {
                    "200": {"description": "File stream"},
                    "401": {"description": "Invalid token"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
