package shas

// builtin lists every masechta as {name, hebrewbooks id, physical pages}.
var builtin = []CorpusItem{
	{"Brachos", "36083", 125}, {"Shabbos", "36104", 312}, {"Eiruvin", "36087", 207},
	{"Psachim", "36101", 240}, {"Shkalim", "36105", 42}, {"Yuma", "36112", 173},
	{"Sukkah", "36108", 110}, {"Beitza", "36082", 78}, {"Rosh Hashana", "36102", 67},
	{"Tainis", "36109", 59}, {"Megilah", "36094", 61}, {"Moed Katan", "36097", 55},
	{"Chagigah", "36084", 51}, {"Yevamos", "36111", 242}, {"Kesubos", "36091", 222},
	{"Nedarim", "36098", 180}, {"Nazir", "36100", 130}, {"Sotah", "36107", 96},
	{"Gittin", "36088", 178}, {"Kedushin", "36092", 162}, {"Bava Kamma", "36079", 236},
	{"Bava Metzia", "36080", 235}, {"Bava Basra", "36078", 350}, {"Sanhedrin", "36103", 224},
	{"Makkos", "36093", 46}, {"Shvuos", "36106", 96}, {"Avodah Zarah", "36077", 150},
	{"Horyos", "36089", 25}, {"Zevachim", "36113", 238}, {"Menuchos", "36096", 217},
	{"Chulin", "36085", 281}, {"Bechoros", "36081", 119}, {"Arachin", "36086", 65},
	{"Temurah", "36110", 65}, {"Krisos", "36090", 54}, {"Meilah", "36095", 41},
	{"Nidah", "36099", 143},
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(builtin)
	if err != nil {
		panic(err)
	}
	return c
}
