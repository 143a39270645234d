package chart

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>{{.CSS}}</style>
</head>
<body>
<div id="chart"></div>
<script>var TASK = {{.Data}};</script>
<script>{{.JS}}</script>
</body>
</html>
`

const chartCSS = `
body { font: 13px/1.4 -apple-system, "Segoe UI", sans-serif; margin: 20px; color: #222; }
.page-title { font-size: 20px; font-weight: 600; }
.page-subtitle { color: #777; margin-bottom: 16px; }
.build { margin-bottom: 28px; border-top: 1px solid #ddd; padding-top: 10px; }
.build-title { font-weight: 600; margin-bottom: 6px; }
.row { display: flex; align-items: center; height: 18px; }
.label { width: 280px; flex: none; overflow: hidden; text-overflow: ellipsis; white-space: nowrap; color: #444; }
.lane { position: relative; flex: 1; height: 14px; background: #f6f6f6; }
.bar { position: absolute; top: 0; height: 100%; min-width: 1px; }
.axis { height: 16px; }
.axis .lane { background: none; }
.tick { position: absolute; top: 0; height: 14px; border-left: 1px solid #ddd; padding-left: 2px; font-size: 10px; color: #999; }
`

const chartJS = `
(function () {
  var colors = [];
  Object.keys(TASK.colorToId).forEach(function (c) { colors[TASK.colorToId[c]] = c; });

  var span = TASK.taskEndTimeMs - TASK.taskStartTimeMs || 1;
  function pct(ms) { return (ms - TASK.taskStartTimeMs) / span * 100; }

  function niceStepMs() {
    var target = span / 8;
    var step = 1000;
    while (step * 10 <= target) step *= 10;
    if (step * 5 <= target) step *= 5;
    else if (step * 2 <= target) step *= 2;
    return step;
  }

  function fmtSeconds(ms) {
    var s = ms / 1000;
    if (s >= 60) {
      var m = Math.floor(s / 60);
      var rest = Math.round(s % 60);
      return rest ? m + 'm' + rest + 's' : m + 'm';
    }
    return s + 's';
  }

  function renderAxis(out) {
    var row = document.createElement('div');
    row.className = 'row axis';
    row.appendChild(document.createElement('div')).className = 'label';
    var lane = document.createElement('div');
    lane.className = 'lane';
    var step = niceStepMs();
    for (var t = 0; t <= span; t += step) {
      var tick = document.createElement('div');
      tick.className = 'tick';
      tick.style.left = (t / span * 100) + '%';
      tick.textContent = fmtSeconds(t);
      lane.appendChild(tick);
    }
    row.appendChild(lane);
    out.appendChild(row);
  }

  function renderNode(node, depth, out) {
    var row = document.createElement('div');
    row.className = 'row';

    var label = document.createElement('div');
    label.className = 'label';
    label.style.paddingLeft = (depth * 14) + 'px';
    label.textContent = node.name;
    label.title = node.name;
    row.appendChild(label);

    var lane = document.createElement('div');
    lane.className = 'lane';
    node.intervals.forEach(function (iv) {
      var bar = document.createElement('div');
      bar.className = 'bar';
      bar.style.left = pct(iv.startTimeMs) + '%';
      bar.style.width = Math.max(pct(iv.endTimeMs) - pct(iv.startTimeMs), 0.05) + '%';
      bar.style.background = colors[iv.colorId] || '#000000';
      bar.title = node.name + '\n' + iv.mode + '\n' + iv.timeRangeRelativeToBuildStart;
      lane.appendChild(bar);
    });
    row.appendChild(lane);
    out.appendChild(row);

    node.children.forEach(function (child) { renderNode(child, depth + 1, out); });
  }

  var chart = document.getElementById('chart');

  var header = document.createElement('div');
  header.className = 'page-title';
  header.textContent = TASK.title;
  chart.appendChild(header);

  var sub = document.createElement('div');
  sub.className = 'page-subtitle';
  sub.textContent = TASK.subtitle;
  chart.appendChild(sub);

  TASK.builds.forEach(function (b) {
    var section = document.createElement('div');
    section.className = 'build';
    var h = document.createElement('div');
    h.className = 'build-title';
    h.textContent = b.title + '  (' + b.jobName + (b.buildId ? ':' + b.buildId : '') + ')';
    section.appendChild(h);
    renderAxis(section);
    renderNode(b.nodeRoot, 0, section);
    chart.appendChild(section);
  });
})();
`
