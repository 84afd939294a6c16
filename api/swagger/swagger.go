package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SCC SAT API",
        "description": "Scholarship exam registration, referral and attendance ledger",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Registrations", "description": "Public registration form"},
        {"name": "Referrals", "description": "Referral code checks"},
        {"name": "Drafts", "description": "Unsubmitted form snapshots"},
        {"name": "Authentication", "description": "Administrator login"},
        {"name": "Admin", "description": "Ledger management"},
        {"name": "Exports", "description": "Asynchronous CSV and PDF exports"}
    ],
    "paths": {
        "/registrations": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Submit a registration",
                "parameters": [
                    {"name": "X-Session-ID", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegistrationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed or invalid referral", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate seat", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Registration backend failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/referrals/validate": {
            "get": {
                "tags": ["Referrals"],
                "summary": "Check a referral code",
                "parameters": [
                    {"name": "code", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "idle, valid or invalid", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/drafts/{session}": {
            "get": {
                "tags": ["Drafts"],
                "summary": "Restore a draft",
                "parameters": [{"name": "session", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No draft", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Drafts"],
                "summary": "Save or stage a draft",
                "parameters": [
                    {"name": "session", "in": "path", "required": true, "type": "string"},
                    {"name": "autosave", "in": "query", "type": "boolean"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Draft"}}
                ],
                "responses": {
                    "200": {"description": "Saved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Staged for autosave", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Drafts"],
                "summary": "Discard a draft",
                "parameters": [{"name": "session", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Discarded"}}
            }
        },
        "/admin/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate the administrator",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current administrator",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/registrations": {
            "get": {
                "tags": ["Admin"],
                "summary": "List registrations",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "attendance", "in": "query", "type": "string", "enum": ["All", "Pending", "Present", "Absent", "Late"]},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string", "enum": ["asc", "desc"]}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/registrations/{seat}": {
            "delete": {
                "tags": ["Admin"],
                "summary": "Delete a registration",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "seat", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/registrations/{seat}/attendance": {
            "patch": {
                "tags": ["Admin"],
                "summary": "Mark attendance",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "seat", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AttendanceUpdateRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/registrations/{seat}/whatsapp": {
            "get": {
                "tags": ["Admin"],
                "summary": "WhatsApp confirmation link",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "seat", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/referrers/{code}": {
            "get": {
                "tags": ["Admin"],
                "summary": "Resolve a referral code",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "code", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/stats": {
            "get": {
                "tags": ["Admin"],
                "summary": "Registration statistics",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/conflicts": {
            "get": {
                "tags": ["Admin"],
                "summary": "Registrations quarantined after a seat collision",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/seats": {
            "post": {
                "tags": ["Admin"],
                "summary": "Issue a seat number without a registration",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"type": "object", "properties": {"year": {"type": "string"}}}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/export.csv": {
            "get": {
                "tags": ["Admin"],
                "summary": "Download the filtered ledger as CSV",
                "produces": ["text/csv"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "attendance", "in": "query", "type": "string"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "CSV file"}}
            }
        },
        "/admin/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue a ledger export",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export job status",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a finished export",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RegistrationRequest": {
            "type": "object",
            "required": ["fullName", "parentName", "mobile", "email", "schoolName", "fieldOfInterest", "location"],
            "properties": {
                "fullName": {"type": "string"},
                "parentName": {"type": "string"},
                "mobile": {"type": "string"},
                "whatsapp": {"type": "string"},
                "email": {"type": "string"},
                "schoolName": {"type": "string"},
                "classStd": {"type": "string", "enum": ["10th"]},
                "fieldOfInterest": {"type": "string", "enum": ["Engineering", "Pharmacy", "B.Sc Agri", "Doctor"]},
                "location": {"type": "string", "enum": ["Satpur", "Meri"]},
                "notes": {"type": "string"},
                "referralCode": {"type": "string"},
                "sessionId": {"type": "string"}
            }
        },
        "Draft": {
            "type": "object",
            "properties": {
                "fullName": {"type": "string"},
                "parentName": {"type": "string"},
                "mobile": {"type": "string"},
                "whatsapp": {"type": "string"},
                "email": {"type": "string"},
                "schoolName": {"type": "string"},
                "classStd": {"type": "string"},
                "fieldOfInterest": {"type": "string"},
                "location": {"type": "string"},
                "notes": {"type": "string"},
                "referralCode": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "AttendanceUpdateRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["Pending", "Present", "Absent", "Late"]}
            }
        },
        "ExportRequest": {
            "type": "object",
            "required": ["format"],
            "properties": {
                "format": {"type": "string", "enum": ["csv", "pdf"]},
                "search": {"type": "string"},
                "attendance": {"type": "string"},
                "sort": {"type": "string"},
                "order": {"type": "string", "enum": ["asc", "desc"]}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
