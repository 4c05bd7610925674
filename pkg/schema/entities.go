package schema

import (
	"context"
	"time"

	"github.com/formapi/formapi/pkg/store"
)

// PermissionTypes are the access rule types understood by the
// authorization engine.
var PermissionTypes = []interface{}{
	"create_all", "create_own",
	"read_all", "read_own",
	"update_all", "update_own",
	"delete_all", "delete_own",
	"self",
}

func now() interface{} {
	return time.Now().UTC()
}

// stampModified refreshes the modified timestamp on every save.
func stampModified(ctx context.Context, input store.Document) (store.Document, error) {
	if input == nil {
		input = store.Document{}
	}
	input["modified"] = time.Now().UTC()
	return input, nil
}

func idField() *Field {
	return &Field{Kind: KindID, ReadOnly: true}
}

func createdField() *Field {
	return &Field{Kind: KindDate, ReadOnly: true, DefaultFunc: now}
}

func modifiedField() *Field {
	return &Field{Kind: KindDate, DefaultFunc: now}
}

// accessRules is the schema for access / submissionAccess lists.
func accessRules() *Field {
	return Array(Object(map[string]*Field{
		"type": {
			Kind:     KindString,
			Required: true,
			Enum:     PermissionTypes,
		},
		"roles": Array(&Field{Kind: KindID, Set: "toID", LooseType: true}),
	}))
}

// RoleEntity is the schema for roles.
func RoleEntity() *Entity {
	return &Entity{
		Name: "role",
		Fields: map[string]*Field{
			"_id":         idField(),
			"title":       {Kind: KindString, Required: true},
			"description": {Kind: KindString},
			"machineName": {Kind: KindString, Trim: true, Index: true},
			"admin":       {Kind: KindBoolean, Default: false},
			"default":     {Kind: KindBoolean, Default: false},
			"created":     createdField(),
			"modified":    modifiedField(),
		},
		PreSave: stampModified,
	}
}

// FormEntity is the schema for forms and resources (type distinguishes).
func FormEntity() *Entity {
	return &Entity{
		Name: "form",
		Fields: map[string]*Field{
			"_id":   idField(),
			"title": {Kind: KindString, Required: true},
			"name":  {Kind: KindString, Required: true},
			"path": {
				Kind:      KindString,
				Required:  true,
				Lowercase: true,
				Trim:      true,
				Index:     true,
			},
			"type": {
				Kind:    KindString,
				Enum:    []interface{}{"form", "resource"},
				Default: "form",
			},
			"display":          {Kind: KindString},
			"tags":             Array(Scalar(KindString)),
			"components":       Array(Scalar(KindMixed)),
			"access":           accessRules(),
			"submissionAccess": accessRules(),
			"owner":            {Kind: KindID, LooseType: true},
			"machineName":      {Kind: KindString, Trim: true, Index: true},
			"created":          createdField(),
			"modified":         modifiedField(),
		},
		Indexes: []Index{
			{Field: "path", Options: store.IndexOptions{Unique: true}},
		},
		PreSave: stampModified,
	}
}

// ActionEntity is the schema for form actions.
func ActionEntity() *Entity {
	return &Entity{
		Name: "action",
		Fields: map[string]*Field{
			"_id":         idField(),
			"title":       {Kind: KindString, Required: true},
			"name":        {Kind: KindString, Required: true},
			"machineName": {Kind: KindString, Trim: true, Index: true},
			"entity":      {Kind: KindID, Index: true, Set: "toID"},
			"entityType": {
				Kind:    KindString,
				Enum:    []interface{}{"form", "resource"},
				Default: "form",
			},
			"handler":   Array(Scalar(KindString)),
			"method":    Array(Scalar(KindString)),
			"condition": {Kind: KindMixed},
			"priority":  {Kind: KindNumber, Default: 0},
			"settings":  {Kind: KindMixed},
			"owner":     {Kind: KindID, LooseType: true},
			"created":   createdField(),
			"modified":  modifiedField(),
		},
		PreSave: stampModified,
	}
}

// SubmissionEntity is the schema for form submissions.
func SubmissionEntity() *Entity {
	return &Entity{
		Name: "submission",
		Fields: map[string]*Field{
			"_id":      idField(),
			"form":     {Kind: KindID, Required: true, Index: true, Set: "toID"},
			"owner":    {Kind: KindID, LooseType: true},
			"roles":    Array(&Field{Kind: KindID, Set: "toID", LooseType: true}),
			"access":   accessRules(),
			"metadata": {Kind: KindMixed},
			"data":     {Kind: KindMixed},
			"created":  createdField(),
			"modified": modifiedField(),
		},
		PreSave: stampModified,
	}
}

// ActionItemEntity records one execution of an action against a submission.
func ActionItemEntity() *Entity {
	return &Entity{
		Name: "actionItem",
		Fields: map[string]*Field{
			"_id":        idField(),
			"action":     {Kind: KindID, Set: "toID"},
			"form":       {Kind: KindID, Index: true, Set: "toID"},
			"submission": {Kind: KindID, Set: "toID", LooseType: true},
			"handler":    {Kind: KindString},
			"method":     {Kind: KindString},
			"state": {
				Kind:    KindString,
				Enum:    []interface{}{"new", "inprogress", "complete", "error"},
				Default: "new",
			},
			"messages": Array(Scalar(KindMixed)),
			"data":     {Kind: KindMixed},
			"created":  createdField(),
			"modified": modifiedField(),
		},
		PreSave: stampModified,
	}
}

// Entities returns the full entity schema set keyed by entity type.
func Entities() map[string]*Entity {
	return map[string]*Entity{
		"role":       RoleEntity(),
		"form":       FormEntity(),
		"action":     ActionEntity(),
		"submission": SubmissionEntity(),
		"actionItem": ActionItemEntity(),
	}
}
