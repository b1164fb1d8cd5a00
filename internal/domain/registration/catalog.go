package registration

// Classification is the admission classification of a visit. It gates the
// department and referral-type options.
type Classification string

const (
	Ambulatory         Classification = "ambulatory"
	PlannedInpatient   Classification = "planned-inpatient"
	EmergencyInpatient Classification = "emergency-inpatient"
)

// Valid reports whether c is one of the known classifications.
func (c Classification) Valid() bool {
	switch c {
	case Ambulatory, PlannedInpatient, EmergencyInpatient:
		return true
	}
	return false
}

// EncounterClass maps the classification to its v3-ActCode encounter class.
func (c Classification) EncounterClass() string {
	switch c {
	case Ambulatory:
		return "AMB"
	case PlannedInpatient:
		return "IMP"
	case EmergencyInpatient:
		return "EMER"
	}
	return ""
}

// VisitType selects the registration number series.
type VisitType string

const (
	VisitAmbulatory VisitType = "ambulatory"
	VisitStationary VisitType = "stationary"
)

// VisitTypeFor resolves the number series of a classification.
func VisitTypeFor(c Classification) VisitType {
	if c == Ambulatory {
		return VisitAmbulatory
	}
	return VisitStationary
}

// ReferralType is the route by which the patient was referred.
type ReferralType string

const (
	ReferralPlannedAmbulatory ReferralType = "planned-ambulatory"
	ReferralDayHospital       ReferralType = "day-hospital"
	ReferralInpatient         ReferralType = "inpatient"
	ReferralSelf              ReferralType = "self-referral"
	ReferralAmbulance         ReferralType = "ambulance"
	ReferralDisasterTransfer  ReferralType = "disaster-transfer"
)

// Option is a selectable code with its display label.
type Option struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}

// Region owns an ordered, disjoint list of districts.
type Region struct {
	Code      string   `json:"code"`
	Display   string   `json:"display"`
	Districts []Option `json:"districts"`
}

var classifications = []Option{
	{string(Ambulatory), "Ambulatory"},
	{string(PlannedInpatient), "Planned inpatient"},
	{string(EmergencyInpatient), "Emergency inpatient"},
}

var referralTypes = []Option{
	{string(ReferralPlannedAmbulatory), "Planned ambulatory"},
	{string(ReferralDayHospital), "Day hospital"},
	{string(ReferralInpatient), "Inpatient"},
	{string(ReferralSelf), "Self-referral"},
	{string(ReferralAmbulance), "Ambulance"},
	{string(ReferralDisasterTransfer), "Disaster transfer"},
}

// departments is the full department catalog, in display order.
var departments = []Option{
	{"11", "Internal medicine"},
	{"12", "Cardiology"},
	{"13", "Neurology"},
	{"14", "General surgery"},
	{"15", "Traumatology and orthopedics"},
	{"16", "Urology"},
	{"17", "Obstetrics and gynecology"},
	{"18", "Cardiac surgery"},
	{"19", "Intensive care"},
	{"21", "Pediatrics"},
	{"22", "Otorhinolaryngology"},
	{"23", "Ophthalmology"},
	{"24", "Endocrinology"},
	{"25", "Gastroenterology"},
	{"31", "Nephrology and dialysis"},
	{"41", "Oncology"},
	{"736", "Outpatient consultation"},
	{"737", "Day surgery"},
	{"738", "Diagnostic imaging"},
	{"739", "Rehabilitation"},
}

// ambulatoryDepartmentCodes lists departments that accept ambulatory visits.
var ambulatoryDepartmentCodes = []string{
	"11", "12", "13", "21", "22", "23", "24", "25", "31", "736", "737", "738", "739",
}

var insurerCompanies = []Option{
	{"aldagi", "Aldagi"},
	{"ardi", "Ardi"},
	{"gpi", "GPI Holding"},
	{"imedi-l", "Imedi L International"},
	{"irao", "Irao"},
	{"psp", "PSP Insurance"},
	{"tbc", "TBC Insurance"},
	{"unison", "Unison"},
	{"universal-healthcare", "Universal Healthcare Programme"},
}

var insuranceTypes = []Option{
	{"state", "State programme"},
	{"private", "Private"},
	{"corporate", "Corporate"},
	{"travel", "Travel"},
}

var statusCodes = []Option{
	{"regular", "Regular"},
	{"veteran", "Veteran"},
	{"idp", "Internally displaced person"},
	{"socially-vulnerable", "Socially vulnerable"},
	{"pensioner", "Pensioner"},
	{"disabled", "Person with disability"},
}

var educationLevels = []Option{
	{"none", "No formal education"},
	{"primary", "Primary"},
	{"secondary", "Secondary"},
	{"vocational", "Vocational"},
	{"higher", "Higher"},
	{"unknown", "Unknown"},
}

var familyStatuses = []Option{
	{"single", "Single"},
	{"married", "Married"},
	{"divorced", "Divorced"},
	{"widowed", "Widowed"},
	{"unknown", "Unknown"},
}

var employmentStatuses = []Option{
	{"employed", "Employed"},
	{"self-employed", "Self-employed"},
	{"unemployed", "Unemployed"},
	{"student", "Student"},
	{"retired", "Retired"},
	{"unknown", "Unknown"},
}

var regions = []Region{
	{Code: "11", Display: "Abkhazia", Districts: []Option{
		{"0101", "Sukhumi"}, {"0102", "Gagra"}, {"0103", "Gudauta"}, {"0104", "Ochamchire"},
		{"0105", "Gulripshi"}, {"0106", "Tkvarcheli"}, {"0107", "Gali"}, {"0108", "Upper Abkhazia"},
	}},
	{Code: "15", Display: "Adjara", Districts: []Option{
		{"0201", "Batumi"}, {"0202", "Keda"}, {"0203", "Kobuleti"}, {"0204", "Shuakhevi"},
		{"0205", "Khelvachauri"}, {"0206", "Khulo"},
	}},
	{Code: "21", Display: "Tbilisi", Districts: []Option{
		{"0401", "Mtatsminda"}, {"0402", "Vake"}, {"0403", "Saburtalo"}, {"0404", "Krtsanisi"},
		{"0405", "Isani"}, {"0406", "Samgori"}, {"0407", "Chughureti"}, {"0408", "Didube"},
		{"0409", "Nadzaladevi"}, {"0410", "Gldani"},
	}},
	{Code: "23", Display: "Guria", Districts: []Option{
		{"0301", "Ozurgeti"}, {"0302", "Lanchkhuti"}, {"0303", "Chokhatauri"},
	}},
	{Code: "29", Display: "Kakheti", Districts: []Option{
		{"0601", "Telavi"}, {"0602", "Akhmeta"}, {"0603", "Gurjaani"}, {"0604", "Dedoplistskaro"},
		{"0605", "Lagodekhi"}, {"0606", "Sagarejo"}, {"0607", "Sighnaghi"}, {"0608", "Kvareli"},
	}},
	{Code: "32", Display: "Kvemo Kartli", Districts: []Option{
		{"0701", "Rustavi"}, {"0702", "Bolnisi"}, {"0703", "Gardabani"}, {"0704", "Dmanisi"},
		{"0705", "Tetritskaro"}, {"0706", "Marneuli"}, {"0707", "Tsalka"},
	}},
	{Code: "35", Display: "Mtskheta-Mtianeti", Districts: []Option{
		{"0801", "Mtskheta"}, {"0802", "Dusheti"}, {"0803", "Tianeti"}, {"0804", "Kazbegi"},
	}},
	{Code: "39", Display: "Imereti", Districts: []Option{
		{"0501", "Kutaisi"}, {"0502", "Baghdati"}, {"0503", "Vani"}, {"0504", "Zestaponi"},
		{"0505", "Terjola"}, {"0506", "Samtredia"}, {"0507", "Sachkhere"}, {"0508", "Tkibuli"},
		{"0509", "Tskaltubo"}, {"0510", "Chiatura"}, {"0511", "Kharagauli"}, {"0512", "Khoni"},
	}},
	{Code: "41", Display: "Racha-Lechkhumi and Kvemo Svaneti", Districts: []Option{
		{"0901", "Ambrolauri"}, {"0902", "Lentekhi"}, {"0903", "Oni"}, {"0904", "Tsageri"},
	}},
	{Code: "44", Display: "Samegrelo-Zemo Svaneti", Districts: []Option{
		{"1001", "Zugdidi"}, {"1002", "Poti"}, {"1003", "Abasha"}, {"1004", "Martvili"},
		{"1005", "Mestia"}, {"1006", "Senaki"}, {"1007", "Chkhorotsku"}, {"1008", "Tsalenjikha"},
		{"1009", "Khobi"},
	}},
	{Code: "47", Display: "Samtskhe-Javakheti", Districts: []Option{
		{"1101", "Akhaltsikhe"}, {"1102", "Adigeni"}, {"1103", "Aspindza"}, {"1104", "Akhalkalaki"},
		{"1105", "Borjomi"}, {"1106", "Ninotsminda"},
	}},
	{Code: "50", Display: "Shida Kartli", Districts: []Option{
		{"1201", "Gori"}, {"1202", "Kaspi"}, {"1203", "Kareli"}, {"1204", "Khashuri"},
	}},
	{Code: "53", Display: "Tskhinvali region", Districts: []Option{
		{"1301", "Tskhinvali"}, {"1302", "Java"}, {"1303", "Akhalgori"}, {"1304", "Kurta"},
		{"1305", "Eredvi"}, {"1306", "Tigva"}, {"1307", "Znauri"}, {"1308", "Kornisi"},
	}},
}

// Lookup tables built once from the catalog above; never mutated afterwards.
var (
	ambulatoryDepartments []Option
	departmentIndex       = map[string]bool{}
	ambulatoryIndex       = map[string]bool{}
	districtsByRegion     = map[string][]Option{}
	regionByDistrict      = map[string]string{}
)

func init() {
	for _, d := range departments {
		departmentIndex[d.Code] = true
	}
	for _, code := range ambulatoryDepartmentCodes {
		ambulatoryIndex[code] = true
	}
	for _, d := range departments {
		if ambulatoryIndex[d.Code] {
			ambulatoryDepartments = append(ambulatoryDepartments, d)
		}
	}
	for _, r := range regions {
		districtsByRegion[r.Code] = r.Districts
		for _, d := range r.Districts {
			regionByDistrict[d.Code] = r.Code
		}
	}
}

// Catalog is the full set of static enumerations served to form clients.
type Catalog struct {
	Classifications  []Option `json:"classifications"`
	Departments      []Option `json:"departments"`
	ReferralTypes    []Option `json:"referral_types"`
	InsurerCompanies []Option `json:"insurer_companies"`
	InsuranceTypes   []Option `json:"insurance_types"`
	StatusCodes      []Option `json:"status_codes"`
	Regions          []Region `json:"regions"`
	Education        []Option `json:"education"`
	FamilyStatus     []Option `json:"family_status"`
	Employment       []Option `json:"employment"`
}

// StaticCatalog returns a copy of the catalog; callers may not alter the
// package tables through it.
func StaticCatalog() Catalog {
	rs := make([]Region, len(regions))
	for i, r := range regions {
		rs[i] = Region{Code: r.Code, Display: r.Display, Districts: cloneOptions(r.Districts)}
	}
	return Catalog{
		Classifications:  cloneOptions(classifications),
		Departments:      cloneOptions(departments),
		ReferralTypes:    cloneOptions(referralTypes),
		InsurerCompanies: cloneOptions(insurerCompanies),
		InsuranceTypes:   cloneOptions(insuranceTypes),
		StatusCodes:      cloneOptions(statusCodes),
		Regions:          rs,
		Education:        cloneOptions(educationLevels),
		FamilyStatus:     cloneOptions(familyStatuses),
		Employment:       cloneOptions(employmentStatuses),
	}
}

// RegionOf returns the owning region of a district code.
func RegionOf(district string) (string, bool) {
	r, ok := regionByDistrict[district]
	return r, ok
}

func referralOption(r ReferralType) Option {
	for _, o := range referralTypes {
		if o.Code == string(r) {
			return o
		}
	}
	return Option{Code: string(r), Display: string(r)}
}

func cloneOptions(in []Option) []Option {
	out := make([]Option, len(in))
	copy(out, in)
	return out
}
