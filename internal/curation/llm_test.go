package curation

import "testing"

func TestParseSeedPlan_OK(t *testing.T) {
	content := `{"seeds":[{"title":"Rainy Day","artist":"Artist A"}],"genres":["acoustic"]}`
	plan, variant := parseSeedPlan(content)
	if variant != variantOK {
		t.Errorf("variant = %v, want ok", variant)
	}
	if len(plan.Seeds) != 1 || plan.Seeds[0].Title != "Rainy Day" {
		t.Errorf("plan = %+v", plan)
	}
}

func TestParseSeedPlan_PartialMissingGenres(t *testing.T) {
	content := `{"seeds":[{"title":"Rainy Day","artist":"Artist A"}]}`
	_, variant := parseSeedPlan(content)
	if variant != variantPartial {
		t.Errorf("variant = %v, want partial", variant)
	}
}

func TestParseSeedPlan_MalformedJSON(t *testing.T) {
	_, variant := parseSeedPlan("not json at all")
	if variant != variantMalformed {
		t.Errorf("variant = %v, want malformed", variant)
	}
}

func TestParseSeedPlan_EmptySeedsIsMalformed(t *testing.T) {
	_, variant := parseSeedPlan(`{"seeds":[],"genres":["rock"]}`)
	if variant != variantMalformed {
		t.Errorf("variant = %v, want malformed", variant)
	}
}
