package graph

import "strings"

// Node labels of the fixed schema
const (
	LabelUser       = "User"
	LabelInterest   = "Interest"
	LabelGoal       = "Goal"
	LabelMotivation = "Motivation"
	LabelTask       = "Task"
	LabelDate       = "Date"
)

// Relationship types of the fixed schema
const (
	RelInterestedIn = "INTERESTED_IN"
	RelHasGoal      = "HAS_GOAL"
	RelLinkedTo     = "LINKED_TO"
	RelMotivatedBy  = "MOTIVATED_BY"
	RelPartOf       = "PART_OF"
	RelCreatedOn    = "CREATED_ON"
)

// Labels lists every node label, in schema order
var Labels = []string{LabelUser, LabelInterest, LabelGoal, LabelMotivation, LabelTask, LabelDate}

// endpoints is the source and target label a relationship type joins
type endpoints struct {
	source string
	target string
}

// relationshipEndpoints mirrors relationshipObjectTypes in GraphSchema
var relationshipEndpoints = map[string]endpoints{
	RelInterestedIn: {LabelUser, LabelInterest},
	RelHasGoal:      {LabelUser, LabelGoal},
	RelLinkedTo:     {LabelGoal, LabelInterest},
	RelMotivatedBy:  {LabelGoal, LabelMotivation},
	RelPartOf:       {LabelTask, LabelGoal},
	RelCreatedOn:    {LabelTask, LabelDate},
}

// NormalizeRelationshipType upper-cases and underscores a relationship label and
// reports whether the result belongs to the schema.
func NormalizeRelationshipType(label string) (string, bool) {
	t := strings.ToUpper(strings.TrimSpace(label))
	t = strings.NewReplacer(" ", "_", "-", "_").Replace(t)
	_, ok := relationshipEndpoints[t]
	return t, ok
}

// AllowsRelationship reports whether relType may point from a source node to a
// target node of the given kinds. relType must already be normalized.
func AllowsRelationship(source Node, relType string, target Node) bool {
	e, ok := relationshipEndpoints[relType]
	return ok && source.Label() == e.source && target.Label() == e.target
}

// GraphSchema describes node and relationship kinds for the extraction and merge prompts
const GraphSchema = `{
  "graphSchema": {
    "nodeLabels": [
      {"$id": "user", "token": "User"},
      {"$id": "interest", "token": "Interest"},
      {"$id": "goal", "token": "Goal"},
      {"$id": "motivation", "token": "Motivation"},
      {"$id": "task", "token": "Task"},
      {"$id": "date", "token": "Date"}
    ],
    "relationshipTypes": [
      {"$id": "interestedIn", "token": "INTERESTED_IN"},
      {"$id": "linkedTo", "token": "LINKED_TO"},
      {"$id": "hasGoal", "token": "HAS_GOAL"},
      {"$id": "motivatedBy", "token": "MOTIVATED_BY"},
      {"$id": "partOf", "token": "PART_OF"},
      {"$id": "createdOn", "token": "CREATED_ON"}
    ],
    "nodeObjectTypes": [
      {"$id": "user", "labels": [{"$ref": "user"}], "properties": [
        {"token": "user_id", "nullable": false, "type": "string"}
      ]},
      {"$id": "interest", "labels": [{"$ref": "interest"}], "properties": [
        {"token": "name", "nullable": false, "type": "string"}
      ]},
      {"$id": "goal", "labels": [{"$ref": "goal"}], "properties": [
        {"token": "description", "nullable": false, "type": "string"},
        {"token": "timeframe", "nullable": true, "type": "string", "enum": ["short-term", "medium-term", "long-term"]}
      ]},
      {"$id": "motivation", "labels": [{"$ref": "motivation"}], "properties": [
        {"token": "title", "nullable": false, "type": "string"},
        {"token": "reason", "nullable": false, "type": "string"}
      ]},
      {"$id": "task", "labels": [{"$ref": "task"}], "properties": [
        {"token": "action", "nullable": false, "type": "string"},
        {"token": "status", "nullable": true, "type": "string", "enum": ["pending", "in_progress", "completed", "failed"]}
      ]},
      {"$id": "date", "labels": [{"$ref": "date"}], "properties": [
        {"token": "day", "nullable": false, "type": "integer"},
        {"token": "month", "nullable": false, "type": "integer"},
        {"token": "year", "nullable": false, "type": "integer"}
      ]}
    ],
    "relationshipObjectTypes": [
      {"$id": "userHasInterest", "type": {"$ref": "interestedIn"}, "from": {"$ref": "user"}, "to": {"$ref": "interest"}, "properties": []},
      {"$id": "userHasGoal", "type": {"$ref": "hasGoal"}, "from": {"$ref": "user"}, "to": {"$ref": "goal"}, "properties": []},
      {"$id": "goalLinkedToInterest", "type": {"$ref": "linkedTo"}, "from": {"$ref": "goal"}, "to": {"$ref": "interest"}, "properties": []},
      {"$id": "goalIsMotivatedBy", "type": {"$ref": "motivatedBy"}, "from": {"$ref": "goal"}, "to": {"$ref": "motivation"}, "properties": []},
      {"$id": "taskBelongsToGoal", "type": {"$ref": "partOf"}, "from": {"$ref": "task"}, "to": {"$ref": "goal"}, "properties": []},
      {"$id": "taskCreatedOn", "type": {"$ref": "createdOn"}, "from": {"$ref": "task"}, "to": {"$ref": "date"}, "properties": []}
    ]
  }
}`

// GraphDataDefinition is the JSON shape contract for GraphData handed to the LLM
const GraphDataDefinition = `{
  "type": "object",
  "properties": {
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "label": {"type": "string"},
          "props": {"type": "object", "additionalProperties": true}
        },
        "required": ["id", "label", "props"]
      }
    },
    "relationships": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "source": {"type": "string"},
          "target": {"type": "string"},
          "label": {"type": "string"}
        },
        "required": ["source", "target", "label"]
      }
    }
  },
  "required": ["nodes", "relationships"]
}`
