package synthdata

// DemoDistricts are the districts most affected by the 2015 Gorkha
// earthquake, used when no damage CSV is supplied.
var DemoDistricts = []string{
	"Sindhupalchok",
	"Kathmandu",
	"Nuwakot",
	"Dhading",
	"Rasuwa",
	"Gorkha",
	"Dolakha",
	"Kavrepalanchok",
	"Lalitpur",
	"Bhaktapur",
	"Ramechhap",
	"Sindhuli",
	"Okhaldhunga",
	"Makwanpur",
}

// DemoNGOs are placeholder aid organizations for synthetic score tables.
var DemoNGOs = []string{
	"Nepal Red Cross Society",
	"Oxfam Nepal",
	"CARE Nepal",
	"Save the Children",
	"World Vision Nepal",
	"Mercy Corps",
	"Habitat for Humanity",
	"Medair",
	"ACTED",
	"Plan International",
}
