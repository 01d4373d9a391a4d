package tools

// Question is one intake catalog entry.
type Question struct {
	Text     string
	Required bool
}

// Catalogs maps scenario to its ordered intake question list. Scenarios
// not present here resolve to an empty catalog, per §6: "Other
// scenarios resolve to the empty catalog".
var Catalogs = map[string][]Question{
	"labor": {
		{Text: "主要工作地区（省/市）。", Required: true},
		{Text: "入职时间、是否签订劳动合同。", Required: true},
		{Text: "岗位与月工资（税前/税后均可）。", Required: true},
		{Text: "被拖欠工资的持续时间与大致总额。", Required: false},
		{Text: "期望结果（补发工资、经济补偿、离职证明等）。", Required: true},
		{Text: "现有证据材料清单。", Required: false},
	},
	// consumer is the SPEC_FULL.md supplementary scenario: consumer-rights
	// disputes, exercising the scenario-keyed catalog with a second tag.
	"consumer": {
		{Text: "交易平台与下单时间。", Required: true},
		{Text: "商品或服务是否与描述相符。", Required: true},
		{Text: "已联系商家或平台客服的情况。", Required: false},
		{Text: "期望的解决方式（退款、换货、赔偿等）。", Required: false},
	},
}

// CatalogFor returns the intake questions for scenario, or an empty
// slice if the scenario is unregistered.
func CatalogFor(scenario string) []Question {
	return Catalogs[scenario]
}
