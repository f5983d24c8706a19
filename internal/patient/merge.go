package patient

import "medvise-backend/pkg"

// Merge applies patch on top of base and returns the merged record.  base is
// not modified.
//
// Field policies: scalars are overwritten when the patch supplies a value,
// previousAnswers is appended (duplicates kept), additionalInfo is a key-level
// union where patch keys win and nil values are ignored, and labResults is
// replaced wholesale because a new panel supersedes the old one.
func Merge(base pkg.PatientRecord, patch Patch) pkg.PatientRecord {
	out := base.Clone()

	if patch.Name != nil {
		out.Name = *patch.Name
	}
	if patch.Age != nil {
		age := *patch.Age
		out.Age = &age
	}
	if patch.Gender != nil {
		out.Gender = *patch.Gender
	}
	if patch.Symptoms != nil {
		out.Symptoms = *patch.Symptoms
	}
	if patch.Duration != nil {
		out.Duration = *patch.Duration
	}
	if patch.ExtraNotes != nil {
		out.ExtraNotes = *patch.ExtraNotes
	}

	if len(patch.PreviousAnswers) > 0 {
		out.PreviousAnswers = append(out.PreviousAnswers, patch.PreviousAnswers...)
	}

	if patch.LabResults != nil {
		out.LabResults = CoerceLabValues(patch.LabResults)
	}

	for k, v := range patch.AdditionalInfo {
		if v == nil {
			continue
		}
		if out.AdditionalInfo == nil {
			out.AdditionalInfo = make(map[string]interface{})
		}
		out.AdditionalInfo[k] = v
	}

	return out
}
