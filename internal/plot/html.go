package plot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/binning"
	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/export"
)

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
html, body, #map { height: 100%; margin: 0; }
.legend { background: #fff; padding: 6px 8px; line-height: 18px; }
.legend i { width: 18px; height: 18px; float: left; margin-right: 6px; }
</style>
</head>
<body>
<div id="map"></div>
<script>
var data = {{.Data}};
var colors = {{.Colors}};
var map = L.map('map');
L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
  maxZoom: 18,
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
var layer = L.geoJSON(data, {
  style: function (f) {
    return {color: '#555', weight: 0.3, fillOpacity: 0.7,
            fillColor: colors[f.properties[{{.CategoryKey}}]] || '#bbb'};
  },
  onEachFeature: function (f, l) {
    var p = f.properties;
    var div = L.DomUtil.create('div');
    L.DomUtil.create('b', '', div).textContent = p.shapeName || '';
    [['quadkey', p.quadkey],
     ['RWI', Number(p[{{.RWIKey}}]).toFixed(4)],
     ['category', p[{{.CategoryKey}}]],
     ['population', Math.round(p.pop_count || 0)]].forEach(function (row) {
      L.DomUtil.create('br', '', div);
      div.appendChild(document.createTextNode(row[0] + ' ' + row[1]));
    });
    l.bindPopup(div);
  }
}).addTo(map);
map.fitBounds(layer.getBounds());
var legend = L.control({position: 'bottomright'});
legend.onAdd = function () {
  var div = L.DomUtil.create('div', 'legend');
  {{range .Labels}}div.innerHTML += '<i style="background:' + colors[{{.}}] + '"></i>' + {{.}} + '<br>';
  {{end}}return div;
};
legend.addTo(map);
</script>
</body>
</html>
`))

// InteractiveMap writes a self-contained Leaflet page embedding the layer.
// Tile attributes reach the page only as JSON data and popup text nodes.
func InteractiveMap(path, title string, l *export.Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, l.Grid.Len())}
	for i, t := range l.Grid.Tiles {
		fc.Features[i] = &geojson.Feature{ID: t.Quadkey, Geometry: t.Geometry, Properties: l.Properties(i)}
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "plot: encode geojson")
	}

	colors := make(map[string]string, len(CategoryColors))
	for label, c := range CategoryColors {
		colors[label] = fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}

	var buf bytes.Buffer
	if err := mapTemplate.Execute(&buf, map[string]any{
		"Title":       title,
		"Data":        template.JS(data),
		"Colors":      colors,
		"Labels":      binning.Labels,
		"RWIKey":      export.ColRWI,
		"CategoryKey": export.ColCategory,
	}); err != nil {
		return eris.Wrap(err, "plot: render html")
	}

	if err := mkdir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "plot: write %s", path)
	}
	zap.L().Info("plot: wrote interactive map", zap.String("path", path))
	return nil
}
