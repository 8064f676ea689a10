package normalize

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var stateNames = map[string]string{
	"Acre":                "AC",
	"Alagoas":             "AL",
	"Amapá":               "AP",
	"Amazonas":            "AM",
	"Bahia":               "BA",
	"Ceará":               "CE",
	"Distrito Federal":    "DF",
	"Espírito Santo":      "ES",
	"Goiás":               "GO",
	"Maranhão":            "MA",
	"Mato Grosso":         "MT",
	"Mato Grosso do Sul":  "MS",
	"Minas Gerais":        "MG",
	"Pará":                "PA",
	"Paraíba":             "PB",
	"Paraná":              "PR",
	"Pernambuco":          "PE",
	"Piauí":               "PI",
	"Rio de Janeiro":      "RJ",
	"Rio Grande do Norte": "RN",
	"Rio Grande do Sul":   "RS",
	"Rondônia":            "RO",
	"Roraima":             "RR",
	"Santa Catarina":      "SC",
	"São Paulo":           "SP",
	"Sergipe":             "SE",
	"Tocantins":           "TO",
}

var (
	statesByTitle = make(map[string]string, len(stateNames))
	statesByFold  = make(map[string]string, len(stateNames))
)

func init() {
	title := cases.Title(language.BrazilianPortuguese)
	for name, code := range stateNames {
		statesByTitle[title.String(name)] = code
		statesByFold[FoldKey(name)] = code
	}
}
