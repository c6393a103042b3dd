package llm

import "fmt"

// Framework describes one strategic-analysis framework.
type Framework struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	SystemPrompt string   `json:"-"`
	Instruction  string   `json:"-"`
	Sections     []string `json:"sections,omitempty"`
}

const defaultSystemPrompt = "You are a professional business analyst with expertise in strategic analysis frameworks. Provide detailed, structured analysis in JSON format."

var frameworks = []Framework{
	{
		ID:           "swot",
		Name:         "SWOT Analysis",
		SystemPrompt: "You are a professional business analyst specializing in SWOT analysis. Provide detailed, structured SWOT analysis in JSON format with strengths, weaknesses, opportunities, and threats arrays. Each item should include factor, impact level, and confidence score.",
		Instruction: `Please perform a comprehensive SWOT analysis for this business idea. Include:
- Strengths: Internal positive factors
- Weaknesses: Internal negative factors
- Opportunities: External positive factors
- Threats: External negative factors
Each factor should include impact level and confidence score.`,
		Sections: []string{"strengths", "weaknesses", "opportunities", "threats"},
	},
	{
		ID:           "pestel",
		Name:         "PESTEL Analysis",
		SystemPrompt: "You are a professional business analyst specializing in PESTEL analysis. Provide detailed Political, Economic, Social, Technological, Environmental, and Legal factor analysis in JSON format with impact scores and trend directions.",
		Instruction: `Please perform a comprehensive PESTEL analysis for this business idea. Analyze:
- Political factors and their impact
- Economic factors and trends
- Social factors and demographics
- Technological factors and innovations
- Environmental factors and sustainability
- Legal factors and regulations
Include impact scores and trend directions.`,
		Sections: []string{"political", "economic", "social", "technological", "environmental", "legal"},
	},
	{
		ID:           "porter_five_forces",
		Name:         "Porter's Five Forces",
		SystemPrompt: "You are a professional business analyst specializing in Porter's Five Forces analysis. Provide detailed analysis of competitive rivalry, supplier power, buyer power, threat of substitutes, and barriers to entry in JSON format.",
		Instruction: `Please perform a Porter's Five Forces analysis for this business idea. Analyze:
- Competitive rivalry intensity
- Supplier bargaining power
- Buyer bargaining power
- Threat of substitute products
- Barriers to entry
Include intensity scores and key factors for each force.`,
		Sections: []string{"competitive_rivalry", "supplier_power", "buyer_power", "threat_of_substitutes", "barriers_to_entry"},
	},
	{
		ID:           "blue_ocean",
		Name:         "Blue Ocean Strategy",
		SystemPrompt: "You are a professional business analyst specializing in Blue Ocean Strategy. Analyze red ocean factors, blue ocean opportunities, value innovation areas, and strategic canvas in JSON format.",
		Instruction: `Please perform a Blue Ocean Strategy analysis for this business idea. Identify:
- Red ocean factors (existing competition)
- Blue ocean opportunities (uncontested market space)
- Value innovation opportunities
- Strategic canvas recommendations`,
		Sections: []string{"red_ocean_factors", "blue_ocean_opportunities", "value_innovation", "strategic_canvas"},
	},
	{
		ID:           "business_model_canvas",
		Name:         "Business Model Canvas",
		SystemPrompt: "You are a professional business analyst specializing in Business Model Canvas. Provide detailed analysis of all 9 key components in JSON format.",
		Instruction: `Please create a Business Model Canvas for this business idea. Include all 9 components:
- Key Partners, Key Activities, Key Resources
- Value Propositions
- Customer Relationships, Channels, Customer Segments
- Cost Structure, Revenue Streams`,
		Sections: []string{
			"key_partners", "key_activities", "key_resources", "value_propositions",
			"customer_relationships", "channels", "customer_segments", "cost_structure", "revenue_streams",
		},
	},
	{
		ID:   "risk_assessment",
		Name: "Risk Assessment",
		Instruction: `Please perform a comprehensive risk assessment for this business idea. Include:
- Market risks and mitigation strategies
- Financial risks and contingencies
- Operational risks and controls
- Strategic risks and responses
Rate probability and impact for each risk.`,
	},
	{
		ID:   "financial_projections",
		Name: "Financial Projections",
		Instruction: `Please create financial projections for this business idea. Include:
- Revenue forecasting (3-year projection)
- Cost structure analysis
- Unit economics breakdown
- Funding requirements and valuation estimates`,
	},
	{
		ID:   "market_sizing",
		Name: "Market Sizing",
		Instruction: `Please perform market sizing analysis for this business idea. Include:
- TAM (Total Addressable Market)
- SAM (Serviceable Addressable Market)
- SOM (Serviceable Obtainable Market)
- Market growth rates and trends`,
	},
}

var frameworkIndex = func() map[string]Framework {
	idx := make(map[string]Framework, len(frameworks))
	for _, f := range frameworks {
		idx[f.ID] = f
	}
	return idx
}()

// Frameworks returns the catalog in display order.
func Frameworks() []Framework {
	out := make([]Framework, len(frameworks))
	copy(out, frameworks)
	return out
}

// LookupFramework returns the catalog entry for id.
func LookupFramework(id string) (Framework, bool) {
	f, ok := frameworkIndex[id]
	return f, ok
}

// SystemPrompt returns the fixed system prompt for a framework, or the
// generic analyst prompt for frameworks without one.
func SystemPrompt(frameworkID string) string {
	if f, ok := frameworkIndex[frameworkID]; ok && f.SystemPrompt != "" {
		return f.SystemPrompt
	}
	return defaultSystemPrompt
}

// ExpectedSections returns the top-level keys a complete payload carries.
// Nil means the framework has no recognized structure.
func ExpectedSections(frameworkID string) []string {
	return frameworkIndex[frameworkID].Sections
}

// BuildPromptContext renders the user message sent to every provider.
// Unknown frameworks get the SWOT instruction.
func BuildPromptContext(businessInput, depth, frameworkID string) string {
	f, ok := frameworkIndex[frameworkID]
	if !ok {
		f = frameworkIndex["swot"]
	}
	if depth == "" {
		depth = "standard"
	}
	return fmt.Sprintf("\nBusiness Input: %s\nAnalysis Depth: %s\n\n%s", businessInput, depth, f.Instruction)
}
