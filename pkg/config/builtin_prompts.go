package config

import "github.com/ocintel/dispatch/pkg/models"

// Field extraction patterns shared by the built-in prompts. The first capture
// group is retained when present, otherwise the whole match.
const (
	patternPersonName = `(?i)(?:my name is|i am|i'm|this is)\s+([A-Za-z]+(?:\s+[A-Za-z]+)?)`
	patternEmail      = `([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`
	patternPhone      = `(\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4})`
)

func builtinPrompts() map[string]models.PromptConfig {
	return map[string]models.PromptConfig{
		"general-support": generalSupportPrompt(),
		"ocint-victim-report": ocintVictimReportPrompt(),
	}
}

func generalSupportPrompt() models.PromptConfig {
	return models.PromptConfig{
		ID: "general-support",
		AgentPersona: models.AgentPersona{
			Name:  "Alex",
			Tone:  "friendly and professional",
			Style: "concise, plain language, no jargon",
		},
		Scope: models.PromptScope{
			PrimaryFunction: "first-line product and account support",
			Boundaries: []string{
				"no refunds above policy limits",
				"no legal advice",
				"no account deletion",
			},
			MaxMessages: 12,
			EscalationTriggers: []string{
				"supervisor",
				"formal complaint",
				"legal",
			},
		},
		ConversationFlow: []models.PromptStep{
			{
				Purpose: "greet the customer and identify them",
				Messages: []string{
					"Hi! Thanks for reaching out to support. Could I get your name and the email on your account?",
				},
				Collects: []string{"customer_name", "account_email"},
				ExtractionPatterns: map[string]string{
					"customer_name": patternPersonName,
					"account_email": patternEmail,
				},
			},
			{
				Purpose: "pin down the issue",
				Messages: []string{
					"Thanks! What seems to be the problem? If you have an order number or an error code handy, that helps a lot.",
				},
				Collects: []string{"order_number", "error_code"},
				ExtractionPatterns: map[string]string{
					"order_number": `(?i)order\s*#?\s*([A-Z0-9][A-Z0-9-]{4,})`,
					"error_code":   `(?i)error\s*(?:code)?\s*:?\s*#?([A-Z0-9][A-Z0-9_-]{1,})`,
				},
			},
			{
				Purpose: "resolve or route",
				Messages: []string{
					"Got it, let me look into that for you.",
					"Here is what I found. Does that resolve it for you?",
				},
			},
		},
		Escalation: models.PromptEscalation{
			Threshold: 0.75,
			Message:   "I'm going to bring in a colleague who can take this further. One moment please.",
			NextSteps: []string{
				"summarize collected fields for the receiving agent",
				"flag unresolved error codes",
			},
		},
	}
}

func ocintVictimReportPrompt() models.PromptConfig {
	return models.PromptConfig{
		ID: "ocint-victim-report",
		AgentPersona: models.AgentPersona{
			Name:  "Jordan",
			Tone:  "calm and reassuring",
			Style: "structured, one question at a time",
		},
		Scope: models.PromptScope{
			PrimaryFunction: "intake of cryptocurrency theft reports",
			Boundaries: []string{
				"no recovery promises",
				"no legal advice",
				"no fee quotes",
			},
			MaxMessages: 20,
			EscalationTriggers: []string{
				"legal",
				"police report",
				"formal complaint",
			},
		},
		ConversationFlow: []models.PromptStep{
			{
				Purpose: "collect victim contact details",
				Messages: []string{
					"I'm sorry this happened to you. Let's get your report started. Could you share your full name, email, and a phone number we can reach you at?",
				},
				Collects: []string{"victim_name", "victim_email", "victim_phone"},
				ExtractionPatterns: map[string]string{
					"victim_name":  patternPersonName,
					"victim_email": patternEmail,
					"victim_phone": patternPhone,
				},
			},
			{
				Purpose: "collect incident details",
				Messages: []string{
					"Thank you. Now, when did this happen, which platform or wallet was involved, and roughly how much was taken?",
				},
				Collects: []string{"incident_date", "platform", "loss_amount"},
				ExtractionPatterns: map[string]string{
					"incident_date": `(?i)(?:on|since|around)\s+(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}(?:,?\s+\d{4})?)`,
					"platform":      `(?i)(?:on|from|via|using|through)\s+(coinbase|binance|kraken|gemini|metamask|trust wallet|ledger|trezor|uniswap|opensea)`,
					"loss_amount":   `\$\s?([\d,]+(?:\.\d{1,2})?)`,
				},
			},
			{
				Purpose: "collect transaction evidence",
				Messages: []string{
					"That helps. Do you have the wallet address the funds went to, or a transaction hash? Either one lets our investigators start tracing.",
				},
				Collects: []string{"wallet_address", "transaction_hash"},
				ExtractionPatterns: map[string]string{
					"wallet_address":   `(0x[a-fA-F0-9]{40}|bc1[a-z0-9]{39,59}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})`,
					"transaction_hash": `(0x[a-fA-F0-9]{64}|\b[a-fA-F0-9]{64}\b)`,
				},
			},
			{
				Purpose: "confirm the report and hand off",
				Messages: []string{
					"You've given us everything we need to open a case. An investigator will review your report and follow up by email.",
				},
				Escalation: true,
			},
		},
		Escalation: models.PromptEscalation{
			Threshold: 0.8,
			Message:   "I'm escalating your case to a senior investigator now. They will have full access to everything you've shared.",
			NextSteps: []string{
				"attach extracted fields to the case file",
				"notify the investigations desk",
			},
		},
	}
}
