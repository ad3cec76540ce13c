package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the scene service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MapBounds",
		Fields: graphql.Fields{
			"north": &graphql.Field{Type: graphql.Float},
			"south": &graphql.Field{Type: graphql.Float},
			"east":  &graphql.Field{Type: graphql.Float},
			"west":  &graphql.Field{Type: graphql.Float},
		},
	})

	legendType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LegendEntry",
		Fields: graphql.Fields{
			"mode":    &graphql.Field{Type: graphql.String},
			"label":   &graphql.Field{Type: graphql.String},
			"color":   &graphql.Field{Type: graphql.String},
			"count":   &graphql.Field{Type: graphql.Int},
			"visible": &graphql.Field{Type: graphql.Boolean},
		},
	})

	styleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LineStyle",
		Fields: graphql.Fields{
			"color":    &graphql.Field{Type: graphql.String},
			"pattern":  &graphql.Field{Type: graphql.String},
			"weight":   &graphql.Field{Type: graphql.Float},
			"opacity":  &graphql.Field{Type: graphql.Float},
			"priority": &graphql.Field{Type: graphql.Int},
		},
	})

	stopType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Stop",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"name":       &graphql.Field{Type: graphql.String},
			"city":       &graphql.Field{Type: graphql.String},
			"coordinate": &graphql.Field{Type: coordinateType},
			"is_hub":     &graphql.Field{Type: graphql.Boolean},
		},
	})

	markerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Marker",
		Fields: graphql.Fields{
			"id": &graphql.Field{Type: graphql.String},
			"role": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(p.Source.(domain.DrawnMarker).Marker.Role), nil
				},
			},
			"stop": &graphql.Field{
				Type: stopType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.DrawnMarker).Marker.Stop, nil
				},
			},
			"segment_id": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.DrawnMarker).Marker.SegmentID, nil
				},
			},
			"annotation": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.DrawnMarker).Marker.Annotation, nil
				},
			},
			"position": &graphql.Field{Type: coordinateType},
		},
	})

	polylineType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Polyline",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"segment_id": &graphql.Field{Type: graphql.String},
			"seq":        &graphql.Field{Type: graphql.Int},
			"mode":       &graphql.Field{Type: graphql.String},
			"visible":    &graphql.Field{Type: graphql.Boolean},
			"style":      &graphql.Field{Type: styleType},
			"path":       &graphql.Field{Type: graphql.NewList(coordinateType)},
		},
	})

	sceneType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Scene",
		Fields: graphql.Fields{
			"route_id":         &graphql.Field{Type: graphql.String},
			"no_data":          &graphql.Field{Type: graphql.Boolean},
			"legend":           &graphql.Field{Type: graphql.NewList(legendType)},
			"markers":          &graphql.Field{Type: graphql.NewList(markerType)},
			"polylines":        &graphql.Field{Type: graphql.NewList(polylineType)},
			"bounds":           &graphql.Field{Type: boundsType},
			"skipped_segments": &graphql.Field{Type: graphql.NewList(graphql.String)},
			"warnings":         &graphql.Field{Type: graphql.NewList(graphql.String)},
		},
	})

	tileStateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TileState",
		Fields: graphql.Fields{
			"state":            &graphql.Field{Type: graphql.String},
			"active_source":    &graphql.Field{Type: graphql.String},
			"error_count":      &graphql.Field{Type: graphql.Int},
			"window_errors":    &graphql.Field{Type: graphql.Int},
			"in_flight":        &graphql.Field{Type: graphql.Int},
			"fallback_engaged": &graphql.Field{Type: graphql.Boolean},
		},
	})

	toggleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ModeToggle",
		Fields: graphql.Fields{
			"mode":    &graphql.Field{Type: graphql.String},
			"visible": &graphql.Field{Type: graphql.Boolean},
			"legend":  &graphql.Field{Type: graphql.NewList(legendType)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"scene": &graphql.Field{
				Type:        sceneType,
				Description: "Current scene of a route",
				Args: graphql.FieldConfigArgument{
					"routeId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Scenes.Scene(p.Context, p.Args["routeId"].(string))
				},
			},
			"tileState": &graphql.Field{
				Type:        tileStateType,
				Description: "Basemap circuit breaker of a route's session",
				Args: graphql.FieldConfigArgument{
					"routeId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Scenes.TileState(p.Args["routeId"].(string))
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"toggleMode": &graphql.Field{
				Type:        toggleType,
				Description: "Show or hide every segment of a transport mode",
				Args: graphql.FieldConfigArgument{
					"routeId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"mode":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					mode := domain.TransportMode(p.Args["mode"].(string))
					visible, legend, err := deps.Scenes.ToggleMode(p.Context, p.Args["routeId"].(string), mode)
					if err != nil {
						return nil, err
					}
					return ModeToggle{Mode: mode, Visible: visible, Legend: legend}, nil
				},
			},
			"renderStoredRoute": &graphql.Field{
				Type:        sceneType,
				Description: "Render a route from the segment store",
				Args: graphql.FieldConfigArgument{
					"routeId":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"surfaceId": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Scenes.RenderStored(p.Context, p.Args["routeId"].(string), p.Args["surfaceId"].(string))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
