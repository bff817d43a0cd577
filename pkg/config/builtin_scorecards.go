package config

import "github.com/ocintel/dispatch/pkg/models"

func builtinScorecards() map[string]models.Scorecard {
	return map[string]models.Scorecard{
		"general_support":       generalSupportScorecard(),
		"crypto_incident_intake": cryptoIncidentIntakeScorecard(),
	}
}

func generalSupportScorecard() models.Scorecard {
	return models.Scorecard{
		ID:           "general_support",
		Name:         "General Support Interaction",
		Version:      "1.2",
		PassingScore: 80,
		Criteria: []models.Criterion{
			{
				ID:       "greeting_professionalism",
				Name:     "Greeting and professionalism",
				Weight:   10,
				MaxScore: 10,
				SubCriteria: []models.SubCriterion{
					{Name: "timely, branded greeting", Points: 5},
					{Name: "professional tone throughout", Points: 5},
				},
			},
			{
				ID:       "communication_clarity",
				Name:     "Communication clarity",
				Weight:   20,
				MaxScore: 20,
				SubCriteria: []models.SubCriterion{
					{Name: "clear, jargon-free explanations", Points: 8},
					{Name: "appropriate tone for the customer", Points: 6},
					{Name: "grammar and spelling", Points: 6},
				},
			},
			{
				ID:       "product_knowledge",
				Name:     "Product knowledge",
				Weight:   25,
				MaxScore: 25,
				Required: true,
				AutoFail: true,
				SubCriteria: []models.SubCriterion{
					{Name: "accurate product information", Points: 15},
					{Name: "correct policy application", Points: 10},
				},
			},
			{
				ID:       "problem_resolution",
				Name:     "Problem resolution",
				Weight:   20,
				MaxScore: 20,
				SubCriteria: []models.SubCriterion{
					{Name: "issue correctly diagnosed", Points: 12},
					{Name: "efficient path to resolution", Points: 8},
				},
			},
			{
				ID:       "empathy_rapport",
				Name:     "Empathy and rapport",
				Weight:   15,
				MaxScore: 15,
				SubCriteria: []models.SubCriterion{
					{Name: "acknowledged customer frustration", Points: 8},
					{Name: "personalized the interaction", Points: 7},
				},
			},
			{
				ID:       "closing_next_steps",
				Name:     "Closing and next steps",
				Weight:   10,
				MaxScore: 10,
				SubCriteria: []models.SubCriterion{
					{Name: "summarized the outcome", Points: 5},
					{Name: "set clear next steps", Points: 5},
				},
			},
		},
	}
}

func cryptoIncidentIntakeScorecard() models.Scorecard {
	return models.Scorecard{
		ID:           "crypto_incident_intake",
		Name:         "Crypto Incident Intake",
		Version:      "1.0",
		PassingScore: 85,
		Criteria: []models.Criterion{
			{
				ID:       "intake_completeness",
				Name:     "Intake completeness",
				Weight:   30,
				MaxScore: 30,
				SubCriteria: []models.SubCriterion{
					{Name: "contact details captured", Points: 10},
					{Name: "incident details captured", Points: 10},
					{Name: "evidence identifiers captured", Points: 10},
				},
			},
			{
				ID:       "evidence_integrity",
				Name:     "Evidence integrity",
				Weight:   25,
				MaxScore: 25,
				Required: true,
				AutoFail: true,
				SubCriteria: []models.SubCriterion{
					{Name: "addresses and hashes recorded verbatim", Points: 15},
					{Name: "no leading or speculative statements", Points: 10},
				},
			},
			{
				ID:       "urgency_handling",
				Name:     "Urgency handling",
				Weight:   20,
				MaxScore: 20,
				SubCriteria: []models.SubCriterion{
					{Name: "active-theft indicators escalated promptly", Points: 12},
					{Name: "SLA-appropriate pacing", Points: 8},
				},
			},
			{
				ID:       "communication",
				Name:     "Communication",
				Weight:   15,
				MaxScore: 15,
				SubCriteria: []models.SubCriterion{
					{Name: "calm, reassuring tone", Points: 8},
					{Name: "one question at a time", Points: 7},
				},
			},
			{
				ID:       "compliance",
				Name:     "Compliance",
				Weight:   10,
				MaxScore: 10,
				SubCriteria: []models.SubCriterion{
					{Name: "no recovery promises made", Points: 6},
					{Name: "boundaries respected", Points: 4},
				},
			},
		},
	}
}
