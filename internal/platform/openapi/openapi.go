package openapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pms/pms/internal/domain/patient"
)

// Generator builds the OpenAPI 3.0 document for the patient API.
type Generator struct {
	version string
	baseURL string
}

// NewGenerator creates a new OpenAPI spec generator.
func NewGenerator(version, baseURL string) *Generator {
	return &Generator{version: version, baseURL: baseURL}
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	idParam := []map[string]interface{}{
		{"name": "id", "in": "path", "required": true, "description": "Patient id, e.g. P001", "schema": map[string]string{"type": "string"}},
	}

	paths := map[string]interface{}{
		"/": map[string]interface{}{
			"get": g.operation("getRoot", "Service banner", map[string]interface{}{
				"200": g.buildResponseWithSchema("Banner", "#/components/schemas/Message"),
			}),
		},
		"/about": map[string]interface{}{
			"get": g.operation("getAbout", "Describe the API", map[string]interface{}{
				"200": g.buildResponseWithSchema("Description", "#/components/schemas/Message"),
			}),
		},
		"/view": map[string]interface{}{
			"get": g.operation("listPatients", "All patients keyed by id, in stored order", map[string]interface{}{
				"200": g.buildResponse("Patient collection", map[string]interface{}{
					"type":                 "object",
					"additionalProperties": map[string]interface{}{"$ref": "#/components/schemas/Patient"},
				}),
				"500": g.errorResponse("Store unavailable"),
			}),
		},
		"/patient/{id}": map[string]interface{}{
			"get": withParams(g.operation("getPatient", "Read one patient", map[string]interface{}{
				"200": g.buildResponseWithSchema("Patient", "#/components/schemas/Patient"),
				"404": g.errorResponse("Patient not found"),
			}), idParam),
		},
		"/sort": map[string]interface{}{
			"get": withParams(g.operation("sortPatients", "Patients ordered by a numeric field", map[string]interface{}{
				"200": g.buildResponse("Sorted patients", map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"$ref": "#/components/schemas/Patient"},
				}),
				"400": g.errorResponse("Invalid sort field or order"),
			}), []map[string]interface{}{
				{"name": "sort_by", "in": "query", "required": true, "schema": map[string]interface{}{"type": "string", "enum": patient.SortFields}},
				{"name": "order", "in": "query", "required": false, "schema": map[string]interface{}{
					"type": "string", "enum": []string{patient.OrderAsc, patient.OrderDesc}, "default": patient.OrderAsc,
				}},
			}),
		},
		"/create": map[string]interface{}{
			"post": withBody(g.operation("createPatient", "Create a patient", map[string]interface{}{
				"201": g.buildResponseWithSchema("Created", "#/components/schemas/Created"),
				"400": g.errorResponse("Validation failed or id already exists"),
			}), "#/components/schemas/PatientCreate"),
		},
		"/edit/{id}": map[string]interface{}{
			"put": withParams(withBody(g.operation("updatePatient", "Update some fields of a patient", map[string]interface{}{
				"200": g.buildResponseWithSchema("Updated", "#/components/schemas/Message"),
				"400": g.errorResponse("Merged record failed validation"),
				"404": g.errorResponse("Patient not found"),
			}), "#/components/schemas/PatientUpdate"), idParam),
		},
		"/delete/{id}": map[string]interface{}{
			"delete": withParams(g.operation("deletePatient", "Delete a patient", map[string]interface{}{
				"200": g.buildResponseWithSchema("Deleted", "#/components/schemas/Message"),
				"404": g.errorResponse("Patient not found"),
			}), idParam),
		},
		"/export.xlsx": map[string]interface{}{
			"get": g.operation("exportPatients", "All patients as a spreadsheet", map[string]interface{}{
				"200": map[string]interface{}{
					"description": "xlsx workbook",
					"content": map[string]interface{}{
						"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": map[string]interface{}{
							"schema": map[string]interface{}{"type": "string", "format": "binary"},
						},
					},
				},
			}),
		},
		"/health": map[string]interface{}{
			"get": g.operation("health", "Liveness and store health", map[string]interface{}{
				"200": map[string]interface{}{"description": "Healthy"},
				"503": map[string]interface{}{"description": "Store unavailable"},
			}),
		},
	}

	spec := map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Patient Management System API",
			"version":     g.version,
			"description": "Manage patient records with computed BMI and health verdict",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": buildComponentSchemas(),
		},
	}

	return spec
}

func (g *Generator) operation(id, summary string, responses map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"summary":     summary,
		"operationId": id,
		"tags":        []string{"Patient"},
		"responses":   responses,
	}
}

func withParams(op map[string]interface{}, params []map[string]interface{}) map[string]interface{} {
	op["parameters"] = params
	return op
}

func withBody(op map[string]interface{}, schemaRef string) map[string]interface{} {
	op["requestBody"] = map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{"$ref": schemaRef},
			},
		},
	}
	return op
}

// buildResponseWithSchema creates an OpenAPI response with content schema reference.
func (g *Generator) buildResponseWithSchema(description, schemaRef string) map[string]interface{} {
	return g.buildResponse(description, map[string]interface{}{"$ref": schemaRef})
}

func (g *Generator) buildResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": schema,
			},
		},
	}
}

func (g *Generator) errorResponse(description string) map[string]interface{} {
	return g.buildResponseWithSchema(description, "#/components/schemas/Error")
}

// ── Component schemas ───────────────────────────────────────────────────

func buildComponentSchemas() map[string]interface{} {
	return map[string]interface{}{
		"Patient":       buildPatientSchema(),
		"PatientCreate": buildPatientCreateSchema(),
		"PatientUpdate": buildPatientUpdateSchema(),
		"Message": map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"message": map[string]interface{}{"type": "string"}},
			"required":   []string{"message"},
		},
		"Created": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message":    map[string]interface{}{"type": "string"},
				"patient_id": map[string]interface{}{"type": "string"},
			},
			"required": []string{"message", "patient_id"},
		},
		"FieldError": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"field":   map[string]interface{}{"type": "string"},
				"message": map[string]interface{}{"type": "string"},
			},
			"required": []string{"field", "message"},
		},
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"detail": map[string]interface{}{
					"oneOf": []interface{}{
						map[string]interface{}{"type": "string"},
						map[string]interface{}{
							"type":  "array",
							"items": map[string]interface{}{"$ref": "#/components/schemas/FieldError"},
						},
					},
				},
			},
			"required": []string{"detail"},
		},
	}
}

// inputProperties are the client-supplied patient fields.
func inputProperties() map[string]interface{} {
	return map[string]interface{}{
		"name":   map[string]interface{}{"type": "string", "description": "Name of the patient"},
		"city":   map[string]interface{}{"type": "string", "description": "City where the patient is living"},
		"age":    map[string]interface{}{"type": "integer", "exclusiveMinimum": true, "minimum": 0, "exclusiveMaximum": true, "maximum": 120},
		"gender": map[string]interface{}{"type": "string", "enum": []string{string(patient.GenderMale), string(patient.GenderFemale), string(patient.GenderOther)}},
		"height": map[string]interface{}{"type": "number", "exclusiveMinimum": true, "minimum": 0, "description": "Height in meters"},
		"weight": map[string]interface{}{"type": "number", "exclusiveMinimum": true, "minimum": 0, "description": "Weight in kilograms"},
	}
}

func buildPatientCreateSchema() map[string]interface{} {
	props := inputProperties()
	props["id"] = map[string]interface{}{"type": "string", "example": "P001"}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []string{"id", "name", "city", "age", "gender", "height", "weight"},
	}
}

func buildPatientUpdateSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": inputProperties(),
	}
}

func buildPatientSchema() map[string]interface{} {
	props := inputProperties()
	props["id"] = map[string]interface{}{"type": "string"}
	props["bmi"] = map[string]interface{}{"type": "number", "readOnly": true, "description": "weight / height², two decimals"}
	props["verdict"] = map[string]interface{}{
		"type":     "string",
		"readOnly": true,
		"enum":     []string{patient.VerdictUnderweight, patient.VerdictNormal, patient.VerdictOverweight, patient.VerdictObese},
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []string{"id", "name", "city", "age", "gender", "height", "weight", "bmi", "verdict"},
	}
}

// docsCSP lets the Swagger UI page load its assets from the CDN.
const docsCSP = "default-src 'none'; script-src 'unsafe-inline' https://unpkg.com; " +
	"style-src 'unsafe-inline' https://unpkg.com; img-src data: https://unpkg.com; connect-src 'self'"

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Patient Management System API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		c.Response().Header().Set("Content-Security-Policy", docsCSP)
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
