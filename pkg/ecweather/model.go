package ecweather

import "encoding/xml"

// Record is one sensor type's raw data: label, value and unit.
type Record map[string]any

type siteData struct {
	XMLName           xml.Name          `xml:"siteData"`
	Location          location          `xml:"location"`
	Warnings          warnings          `xml:"warnings"`
	CurrentConditions currentConditions `xml:"currentConditions"`
	Forecasts         []forecast        `xml:"forecastGroup>forecast"`
}

type location struct {
	Name     codedText `xml:"name"`
	Province codedText `xml:"province"`
}

type codedText struct {
	Code string `xml:"code,attr"`
	Text string `xml:",chardata"`
}

type warnings struct {
	Events []event `xml:"event"`
}

type event struct {
	Type        string     `xml:"type,attr"`
	Priority    string     `xml:"priority,attr"`
	Description string     `xml:"description,attr"`
	DateTimes   []dateTime `xml:"dateTime"`
}

type dateTime struct {
	Name        string `xml:"name,attr"`
	Zone        string `xml:"zone,attr"`
	TimeStamp   string `xml:"timeStamp"`
	TextSummary string `xml:"textSummary"`
}

type measure struct {
	Units     string `xml:"units,attr"`
	Tendency  string `xml:"tendency,attr"`
	Class     string `xml:"class,attr"`
	Value     string `xml:",chardata"`
	UnitsType string `xml:"unitType,attr"`
}

type currentConditions struct {
	Station          codedText  `xml:"station"`
	DateTimes        []dateTime `xml:"dateTime"`
	Condition        string     `xml:"condition"`
	IconCode         string     `xml:"iconCode"`
	Temperature      measure    `xml:"temperature"`
	Dewpoint         measure    `xml:"dewpoint"`
	WindChill        measure    `xml:"windChill"`
	Humidex          measure    `xml:"humidex"`
	Pressure         measure    `xml:"pressure"`
	Visibility       measure    `xml:"visibility"`
	RelativeHumidity measure    `xml:"relativeHumidity"`
	Wind             wind       `xml:"wind"`
}

type wind struct {
	Speed     measure `xml:"speed"`
	Gust      measure `xml:"gust"`
	Direction string  `xml:"direction"`
	Bearing   measure `xml:"bearing"`
}

type forecast struct {
	TextSummary  string    `xml:"textSummary"`
	Pop          measure   `xml:"abbreviatedForecast>pop"`
	Temperatures []measure `xml:"temperatures>temperature"`
}
