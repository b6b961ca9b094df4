package validation

import "civreg/internal/event/models"

// DefaultSchemas returns the built-in form schemas per event type. A
// registry would normally serve these; the built-ins cover deployments
// without one.
func DefaultSchemas() map[models.EventType]FormSchema {
	return map[models.EventType]FormSchema{
		models.EventBirth:    birthSchema(),
		models.EventDeath:    deathSchema(),
		models.EventMarriage: marriageSchema(),
	}
}

func birthSchema() FormSchema {
	return FormSchema{
		Version: "birth-v1",
		Fields: []Field{
			{ID: "child.firstname", Type: TypeText, Required: true},
			{ID: "child.surname", Type: TypeText, Required: true},
			{ID: "child.dateOfBirth", Type: TypeDate, Required: true},
			{ID: "child.sex", Type: TypeSelect, Required: true, Options: []string{"male", "female", "unknown"}},
			{ID: "child.weightAtBirth", Type: TypeNumber},
			{ID: "child.attendantAtBirth", Type: TypeSelect, Options: []string{"physician", "nurse", "midwife", "other", "none"}},
			{ID: "mother.firstname", Type: TypeText, Required: true},
			{ID: "mother.surname", Type: TypeText, Required: true},
			{ID: "mother.nationalId", Type: TypeText},
			{ID: "father.detailsExist", Type: TypeCheckbox},
			{
				ID: "father.firstname", Type: TypeText, Required: true,
				Conditions: []Condition{{Field: "father.detailsExist", Op: OpEquals, Value: true}},
			},
			{
				ID: "father.surname", Type: TypeText, Required: true,
				Conditions: []Condition{{Field: "father.detailsExist", Op: OpEquals, Value: true}},
			},
			{
				ID: "father.reasonNotApplying", Type: TypeText, Required: true,
				Conditions: []Condition{{Field: "father.detailsExist", Op: OpNotEquals, Value: true}},
			},
			{ID: "informant.relation", Type: TypeSelect, Required: true,
				Options: []string{"mother", "father", "grandparent", "legal_guardian", "other"}},
			{
				ID: "informant.otherRelation", Type: TypeText, Required: true,
				Conditions: []Condition{{Field: "informant.relation", Op: OpEquals, Value: "other"}},
			},
			{ID: "documents.proofOfBirth", Type: TypeFile},
		},
	}
}

func deathSchema() FormSchema {
	return FormSchema{
		Version: "death-v1",
		Fields: []Field{
			{ID: "deceased.firstname", Type: TypeText, Required: true},
			{ID: "deceased.surname", Type: TypeText, Required: true},
			{ID: "deceased.dateOfDeath", Type: TypeDate, Required: true},
			{ID: "deceased.mannerOfDeath", Type: TypeSelect, Required: true,
				Options: []string{"natural", "accident", "suicide", "homicide", "undetermined"}},
			{
				ID: "deceased.causeOfDeathEstablished", Type: TypeCheckbox, Required: true,
				Conditions: []Condition{{Field: "deceased.mannerOfDeath", Op: OpEquals, Value: "natural"}},
			},
			{
				ID: "deceased.causeOfDeath", Type: TypeText, Required: true,
				Conditions: []Condition{{Field: "deceased.causeOfDeathEstablished", Op: OpEquals, Value: true}},
			},
			{ID: "informant.firstname", Type: TypeText, Required: true},
			{ID: "informant.surname", Type: TypeText, Required: true},
			{ID: "documents.deathCertificate", Type: TypeFile},
		},
	}
}

func marriageSchema() FormSchema {
	return FormSchema{
		Version: "marriage-v1",
		Fields: []Field{
			{ID: "groom.firstname", Type: TypeText, Required: true},
			{ID: "groom.surname", Type: TypeText, Required: true},
			{ID: "groom.dateOfBirth", Type: TypeDate, Required: true},
			{ID: "bride.firstname", Type: TypeText, Required: true},
			{ID: "bride.surname", Type: TypeText, Required: true},
			{ID: "bride.dateOfBirth", Type: TypeDate, Required: true},
			{ID: "marriage.date", Type: TypeDate, Required: true},
			{ID: "marriage.typeOfMarriage", Type: TypeSelect, Required: true,
				Options: []string{"monogamous", "polygamous"}},
			{ID: "witnessOne.firstname", Type: TypeText, Required: true},
			{ID: "witnessOne.surname", Type: TypeText, Required: true},
			{ID: "documents.noticeOfMarriage", Type: TypeFile},
		},
	}
}
